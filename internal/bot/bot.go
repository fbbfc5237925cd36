package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow/internal/analytics"
	"eventsnow/internal/events"
	"eventsnow/internal/feed"
	"eventsnow/internal/logger"
	"eventsnow/internal/metrics"
	"eventsnow/internal/models"
	"eventsnow/internal/payment"
)

// Sender is the part of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type EventService interface {
	Register(ctx context.Context, userID int64, role string) error
	Submit(ctx context.Context, in models.NewEvent) (int64, error)
	Get(ctx context.Context, id int64) (*models.Event, error)
	Pending(ctx context.Context, limit int) ([]models.Event, error)
	OrganizerEvents(ctx context.Context, organizerID int64, limit int, status string) ([]models.Event, error)
	Approve(ctx context.Context, id, moderatorID int64) (events.Result, error)
	Reject(ctx context.Context, id, moderatorID int64) (events.Result, error)
	Bump(ctx context.Context, id, organizerID int64) (events.Result, error)
	Delete(ctx context.Context, id int64) (events.Result, error)
}

type FeedBuilder interface {
	Build(ctx context.Context, f feed.Filter) ([]feed.Item, error)
}

type PaymentService interface {
	StartPromotion(ctx context.Context, organizerID, eventID int64, service string) (*payment.Checkout, error)
	CheckPayment(ctx context.Context, orderID int64) (payment.CheckResult, error)
}

type StatsService interface {
	Stats(ctx context.Context) (*analytics.Stats, error)
}

// Deps groups the services the bot talks to. Payments and Stats may be nil.
type Deps struct {
	Events   EventService
	Feed     FeedBuilder
	Payments PaymentService
	Stats    StatsService
}

const (
	pendingPageSize = 10
	myEventsLimit   = 20
)

type handlerFunc func(ctx context.Context, m *tgbotapi.Message)

type command struct {
	handler   handlerFunc
	adminOnly bool
}

type Bot struct {
	Sender Sender
	Deps
	Log *logger.Logger
	Now func() time.Time

	admins   map[int64]bool
	commands map[string]command

	mu      sync.Mutex
	wizards map[int64]*wizard // chatID -> submission in progress
}

func NewBot(sender Sender, deps Deps, adminIDs []int64, log *logger.Logger) *Bot {
	b := &Bot{
		Sender:  sender,
		Deps:    deps,
		Log:     log,
		Now:     time.Now,
		admins:  make(map[int64]bool, len(adminIDs)),
		wizards: make(map[int64]*wizard),
	}
	for _, id := range adminIDs {
		b.admins[id] = true
	}
	b.commands = map[string]command{
		"start":    {handler: b.cmdStart},
		"help":     {handler: b.cmdStart},
		"feed":     {handler: b.cmdFeed},
		"today":    {handler: b.cmdToday},
		"days":     {handler: b.cmdDays},
		"category": {handler: b.cmdCategory},
		"top":      {handler: b.cmdTop},
		"submit":   {handler: b.cmdSubmit},
		"cancel":   {handler: b.cmdCancel},
		"done":     {handler: b.cmdDone},
		"my":       {handler: b.cmdMy},
		"bump":     {handler: b.cmdBump},
		"promo":    {handler: b.cmdPromo},
		"check":    {handler: b.cmdCheck},
		"pending":  {handler: b.cmdPending, adminOnly: true},
		"approve":  {handler: b.cmdApprove, adminOnly: true},
		"reject":   {handler: b.cmdReject, adminOnly: true},
		"delete":   {handler: b.cmdDelete, adminOnly: true},
		"stats":    {handler: b.cmdStats, adminOnly: true},
	}
	return b
}

func (b *Bot) IsAdmin(userID int64) bool {
	return b.admins[userID]
}

// Run consumes updates until ctx is done or the channel closes.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	b.Log.Info("BOT", "Listening for Telegram updates")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate routes one update. Panics in a handler are logged and swallowed
// so one bad message cannot stop the loop.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.Log.Error("BOT", fmt.Sprintf("Handler panic on update %d: %v", upd.UpdateID, r))
		}
	}()

	switch {
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil {
		return
	}

	if m.IsCommand() {
		name := m.Command()
		cmd, ok := b.commands[name]
		if !ok {
			b.reply(m.Chat.ID, "Не знаю такой команды. /help — список команд.")
			return
		}
		if cmd.adminOnly && !b.IsAdmin(m.From.ID) {
			b.reply(m.Chat.ID, "⛔ Команда доступна только модераторам.")
			return
		}
		metrics.BotCommands.WithLabelValues(name).Inc()
		b.Log.LogBot(name, m.Chat.ID, fmt.Sprintf("from %d args=%q", m.From.ID, m.CommandArguments()))
		cmd.handler(ctx, m)
		return
	}

	if w := b.wizardFor(m.Chat.ID); w != nil {
		b.continueWizard(ctx, m, w)
		return
	}

	if strings.TrimSpace(m.Text) != "" {
		b.reply(m.Chat.ID, "Чтобы посмотреть афишу, нажми /feed. Добавить мероприятие: /submit.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return
	}
	action, arg, _ := strings.Cut(q.Data, ":")
	chatID := q.Message.Chat.ID
	b.Log.LogBot("callback:"+action, chatID, fmt.Sprintf("from %d arg=%s", q.From.ID, arg))

	var answer string
	switch action {
	case "check":
		answer = b.checkOrder(ctx, chatID, arg)
	case "approve", "reject":
		if !b.IsAdmin(q.From.ID) {
			answer = "Только для модераторов"
			break
		}
		answer = b.moderate(ctx, chatID, q.From.ID, arg, action == "approve")
	case "submit":
		answer = b.finishWizard(ctx, chatID, q.From.ID, arg == "confirm")
	default:
		answer = "Кнопка устарела"
	}

	if _, err := b.Sender.Request(tgbotapi.NewCallback(q.ID, answer)); err != nil {
		b.Log.Warn("BOT", fmt.Sprintf("Failed to answer callback %s: %v", q.ID, err))
	}
}

// ---------------- SENDING ----------------

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	b.send(msg)
}

func (b *Bot) replyHTML(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.Sender.Send(c); err != nil {
		b.Log.Warn("BOT", fmt.Sprintf("Send failed: %v", err))
	}
}

// failure logs unexpected errors and turns known ones into user text.
func (b *Bot) failure(chatID int64, op string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		b.reply(chatID, "⚠️ Проверь данные: "+verr.Error())
	case errors.Is(err, models.ErrNotFound):
		b.reply(chatID, "Не найдено 🤷")
	case errors.Is(err, models.ErrOwnershipViolation):
		b.reply(chatID, "⛔ Это мероприятие принадлежит другому организатору.")
	case errors.Is(err, models.ErrInvalidState):
		b.reply(chatID, "⚠️ Сейчас это действие недоступно: мероприятие ещё не одобрено или заказ уже закрыт.")
	case errors.Is(err, payment.ErrPaymentInProgress):
		b.reply(chatID, "⏳ Проверка оплаты уже идёт, попробуй через минуту.")
	case errors.Is(err, payment.ErrProviderUnavailable):
		b.reply(chatID, "Платёжный сервис временно недоступен, попробуй позже.")
	default:
		b.Log.Error("BOT", fmt.Sprintf("%s failed for chat %d: %v", op, chatID, err))
		b.reply(chatID, "Что-то пошло не так, попробуй позже.")
	}
}

func reasonText(reason string) string {
	switch reason {
	case models.ReasonNotFound:
		return "Мероприятие не найдено."
	case models.ReasonNotOwner:
		return "⛔ Это мероприятие принадлежит другому организатору."
	case models.ReasonNotApproved:
		return "Мероприятие ещё не прошло модерацию."
	case models.ReasonAlreadyHandled:
		return "Уже обработано."
	default:
		return "Не получилось: " + reason
	}
}
