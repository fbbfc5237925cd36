package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow/internal/events"
	"eventsnow/internal/feed"
	"eventsnow/internal/payment"
	"eventsnow/internal/promotion"
)

const helpText = `Привет! Я EventsNow, афиша событий города.

Жителям:
/feed — ближайшие события
/today — что сегодня
/days N — события на N дней
/category Концерт — по категории
/top — рекомендуемые

Организаторам:
/submit — добавить мероприятие
/my — мои мероприятия
/bump ID — поднять в ленте
/promo ID [услуга] — платное продвижение
/check НОМЕР_ЗАКАЗА — проверить оплату`

const adminHelpText = `

Модераторам:
/pending — на модерации
/approve ID, /reject ID, /delete ID
/stats — статистика`

// ---------------- RESIDENT ----------------

func (b *Bot) cmdStart(ctx context.Context, m *tgbotapi.Message) {
	if err := b.Events.Register(ctx, m.From.ID, ""); err != nil {
		b.Log.Warn("BOT", fmt.Sprintf("Failed to register user %d: %v", m.From.ID, err))
	}
	text := helpText
	if b.IsAdmin(m.From.ID) {
		text += adminHelpText
	}
	b.reply(m.Chat.ID, text)
}

func (b *Bot) cmdFeed(ctx context.Context, m *tgbotapi.Message) {
	b.showFeed(ctx, m.Chat.ID, feed.Filter{})
}

func (b *Bot) cmdToday(ctx context.Context, m *tgbotapi.Message) {
	b.showFeed(ctx, m.Chat.ID, feed.Filter{Days: 1})
}

func (b *Bot) cmdDays(ctx context.Context, m *tgbotapi.Message) {
	days, err := strconv.Atoi(strings.TrimSpace(m.CommandArguments()))
	if err != nil || days < 1 || days > 366 {
		b.reply(m.Chat.ID, "Укажи число дней, например: /days 7")
		return
	}
	b.showFeed(ctx, m.Chat.ID, feed.Filter{Days: days})
}

func (b *Bot) cmdCategory(ctx context.Context, m *tgbotapi.Message) {
	name := strings.TrimSpace(m.CommandArguments())
	if name == "" {
		b.replyHTML(m.Chat.ID, "Укажи категорию, например: <code>/category Концерт</code>\n\n"+categoryList(), nil)
		return
	}
	b.showFeed(ctx, m.Chat.ID, feed.Filter{Category: name})
}

func (b *Bot) cmdTop(ctx context.Context, m *tgbotapi.Message) {
	b.showFeed(ctx, m.Chat.ID, feed.Filter{OnlyPromoted: true})
}

func (b *Bot) showFeed(ctx context.Context, chatID int64, f feed.Filter) {
	items, err := b.Feed.Build(ctx, f)
	if err != nil {
		b.failure(chatID, "feed", err)
		return
	}
	if len(items) == 0 {
		b.reply(chatID, "Пока ничего не нашлось 🙈 Загляни позже!")
		return
	}
	for i := range items {
		b.sendCard(chatID, &items[i])
	}
}

// ---------------- ORGANIZER ----------------

func (b *Bot) cmdMy(ctx context.Context, m *tgbotapi.Message) {
	list, err := b.Events.OrganizerEvents(ctx, m.From.ID, myEventsLimit, "")
	if err != nil {
		b.failure(m.Chat.ID, "my", err)
		return
	}
	if len(list) == 0 {
		b.reply(m.Chat.ID, "У тебя пока нет мероприятий. Добавь первое: /submit")
		return
	}
	var sb strings.Builder
	sb.WriteString("<b>Твои мероприятия</b>\n\n")
	for i := range list {
		sb.WriteString(organizerLine(&list[i], b.Now()))
		sb.WriteByte('\n')
	}
	b.replyHTML(m.Chat.ID, sb.String(), nil)
}

func (b *Bot) cmdBump(ctx context.Context, m *tgbotapi.Message) {
	id, ok := b.idArg(m, "/bump ID")
	if !ok {
		return
	}
	res, err := b.Events.Bump(ctx, id, m.From.ID)
	b.result(m.Chat.ID, "bump", res, err, "⬆️ Мероприятие поднято в ленте.")
}

func (b *Bot) cmdPromo(ctx context.Context, m *tgbotapi.Message) {
	args := strings.Fields(m.CommandArguments())
	if len(args) == 0 {
		b.reply(m.Chat.ID, "Использование: /promo ID [услуга]")
		return
	}
	eventID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || eventID <= 0 {
		b.reply(m.Chat.ID, "ID мероприятия должен быть числом.")
		return
	}
	if len(args) == 1 {
		b.replyHTML(m.Chat.ID, catalogText(eventID), nil)
		return
	}
	if b.Payments == nil {
		b.reply(m.Chat.ID, "Оплата продвижения сейчас недоступна.")
		return
	}

	co, err := b.Payments.StartPromotion(ctx, m.From.ID, eventID, args[1])
	if err != nil {
		b.failure(m.Chat.ID, "promo", err)
		return
	}

	caption := fmt.Sprintf("Заказ #%d: %s — %d %s\nОплати по ссылке или QR-коду, затем нажми «Проверить оплату».",
		co.OrderID, co.Service.Title, co.Amount, co.Currency)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Оплатить", co.PayURL)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 Проверить оплату", fmt.Sprintf("check:%d", co.OrderID))),
	)

	if len(co.QR) > 0 {
		photo := tgbotapi.NewPhoto(m.Chat.ID, tgbotapi.FileBytes{Name: fmt.Sprintf("order-%d.png", co.OrderID), Bytes: co.QR})
		photo.Caption = caption
		photo.ReplyMarkup = keyboard
		b.send(photo)
		return
	}
	msg := tgbotapi.NewMessage(m.Chat.ID, caption)
	msg.ReplyMarkup = keyboard
	b.send(msg)
}

func (b *Bot) cmdCheck(ctx context.Context, m *tgbotapi.Message) {
	arg := strings.TrimSpace(m.CommandArguments())
	if arg == "" {
		b.reply(m.Chat.ID, "Использование: /check НОМЕР_ЗАКАЗА")
		return
	}
	b.reply(m.Chat.ID, b.checkOrder(ctx, m.Chat.ID, arg))
}

// checkOrder returns a short status line; failures are also reported to the chat.
func (b *Bot) checkOrder(ctx context.Context, chatID int64, arg string) string {
	orderID, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || orderID <= 0 {
		return "Неверный номер заказа"
	}
	if b.Payments == nil {
		return "Оплата сейчас недоступна"
	}
	res, err := b.Payments.CheckPayment(ctx, orderID)
	if err != nil {
		b.failure(chatID, "check", err)
		return "Не удалось проверить"
	}
	switch res {
	case payment.CheckPaid:
		return fmt.Sprintf("✅ Заказ #%d оплачен, продвижение включено", orderID)
	case payment.CheckCanceled:
		return fmt.Sprintf("❌ Заказ #%d отменён", orderID)
	default:
		return fmt.Sprintf("⏳ Оплата заказа #%d ещё не поступила", orderID)
	}
}

// ---------------- ADMIN ----------------

func (b *Bot) cmdPending(ctx context.Context, m *tgbotapi.Message) {
	list, err := b.Events.Pending(ctx, pendingPageSize)
	if err != nil {
		b.failure(m.Chat.ID, "pending", err)
		return
	}
	if len(list) == 0 {
		b.reply(m.Chat.ID, "Очередь модерации пуста ✨")
		return
	}
	for i := range list {
		ev := &list[i]
		keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Одобрить", fmt.Sprintf("approve:%d", ev.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🚫 Отклонить", fmt.Sprintf("reject:%d", ev.ID)),
		))
		b.replyHTML(m.Chat.ID, moderationText(ev), keyboard)
	}
}

func (b *Bot) cmdApprove(ctx context.Context, m *tgbotapi.Message) {
	if _, ok := b.idArg(m, "/approve ID"); ok {
		b.reply(m.Chat.ID, b.moderate(ctx, m.Chat.ID, m.From.ID, m.CommandArguments(), true))
	}
}

func (b *Bot) cmdReject(ctx context.Context, m *tgbotapi.Message) {
	if _, ok := b.idArg(m, "/reject ID"); ok {
		b.reply(m.Chat.ID, b.moderate(ctx, m.Chat.ID, m.From.ID, m.CommandArguments(), false))
	}
}

func (b *Bot) moderate(ctx context.Context, chatID, moderatorID int64, arg string, approve bool) string {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return "Неверный ID"
	}
	var res events.Result
	if approve {
		res, err = b.Events.Approve(ctx, id, moderatorID)
	} else {
		res, err = b.Events.Reject(ctx, id, moderatorID)
	}
	if err != nil {
		b.failure(chatID, "moderate", err)
		return "Ошибка"
	}
	if !res.OK {
		return reasonText(res.Reason)
	}
	if approve {
		return fmt.Sprintf("✅ Мероприятие #%d одобрено", id)
	}
	return fmt.Sprintf("🚫 Мероприятие #%d отклонено", id)
}

func (b *Bot) cmdDelete(ctx context.Context, m *tgbotapi.Message) {
	id, ok := b.idArg(m, "/delete ID")
	if !ok {
		return
	}
	res, err := b.Events.Delete(ctx, id)
	b.result(m.Chat.ID, "delete", res, err, fmt.Sprintf("🗑 Мероприятие #%d удалено.", id))
}

func (b *Bot) cmdStats(ctx context.Context, m *tgbotapi.Message) {
	if b.Stats == nil {
		b.reply(m.Chat.ID, "Статистика недоступна.")
		return
	}
	st, err := b.Stats.Stats(ctx)
	if err != nil {
		b.failure(m.Chat.ID, "stats", err)
		return
	}
	b.replyHTML(m.Chat.ID, statsText(st), nil)
}

// ---------------- HELPERS ----------------

func (b *Bot) idArg(m *tgbotapi.Message, usage string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(m.CommandArguments()), 10, 64)
	if err != nil || id <= 0 {
		b.reply(m.Chat.ID, "Использование: "+usage)
		return 0, false
	}
	return id, true
}

func (b *Bot) result(chatID int64, op string, res events.Result, err error, okText string) {
	switch {
	case err != nil:
		b.failure(chatID, op, err)
	case !res.OK:
		b.reply(chatID, reasonText(res.Reason))
	default:
		b.reply(chatID, okText)
	}
}

func catalogText(eventID int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Продвижение мероприятия #%d</b>\n\n", eventID)
	for _, s := range promotion.Catalog() {
		fmt.Fprintf(&sb, "• %s — %d ₽\n  <code>/promo %d %s</code>\n", s.Title, s.Price, eventID, s.Kind)
	}
	return sb.String()
}

func categoryList() string {
	return "Категории: " + strings.Join(categories, ", ")
}
