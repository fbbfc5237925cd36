package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventsnow/internal/analytics"
	"eventsnow/internal/events"
	"eventsnow/internal/feed"
	"eventsnow/internal/logger"
	"eventsnow/internal/models"
	"eventsnow/internal/payment"
	"eventsnow/internal/promotion"
)

// ---------------- FAKES ----------------

type fakeSender struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	answers []tgbotapi.CallbackConfig
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	return tgbotapi.Message{MessageID: len(s.sent)}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		s.answers = append(s.answers, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, c := range s.sent {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, v.Text)
		case tgbotapi.PhotoConfig:
			out = append(out, v.Caption)
		}
	}
	return out
}

func (s *fakeSender) lastText() string {
	texts := s.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
	s.answers = nil
}

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) Register(ctx context.Context, userID int64, role string) error {
	return m.Called(ctx, userID, role).Error(0)
}

func (m *MockEvents) Submit(ctx context.Context, in models.NewEvent) (int64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEvents) Get(ctx context.Context, id int64) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEvents) Pending(ctx context.Context, limit int) ([]models.Event, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockEvents) OrganizerEvents(ctx context.Context, organizerID int64, limit int, status string) ([]models.Event, error) {
	args := m.Called(ctx, organizerID, limit, status)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockEvents) Approve(ctx context.Context, id, moderatorID int64) (events.Result, error) {
	args := m.Called(ctx, id, moderatorID)
	return args.Get(0).(events.Result), args.Error(1)
}

func (m *MockEvents) Reject(ctx context.Context, id, moderatorID int64) (events.Result, error) {
	args := m.Called(ctx, id, moderatorID)
	return args.Get(0).(events.Result), args.Error(1)
}

func (m *MockEvents) Bump(ctx context.Context, id, organizerID int64) (events.Result, error) {
	args := m.Called(ctx, id, organizerID)
	return args.Get(0).(events.Result), args.Error(1)
}

func (m *MockEvents) Delete(ctx context.Context, id int64) (events.Result, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(events.Result), args.Error(1)
}

type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) Build(ctx context.Context, f feed.Filter) ([]feed.Item, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]feed.Item), args.Error(1)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) StartPromotion(ctx context.Context, organizerID, eventID int64, service string) (*payment.Checkout, error) {
	args := m.Called(ctx, organizerID, eventID, service)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Checkout), args.Error(1)
}

func (m *MockPayments) CheckPayment(ctx context.Context, orderID int64) (payment.CheckResult, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(payment.CheckResult), args.Error(1)
}

type MockStats struct {
	mock.Mock
}

func (m *MockStats) Stats(ctx context.Context) (*analytics.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Stats), args.Error(1)
}

// ---------------- HELPERS ----------------

const (
	adminID     = int64(1)
	organizerID = int64(7)
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	bot      *Bot
	sender   *fakeSender
	events   *MockEvents
	feed     *MockFeed
	payments *MockPayments
	stats    *MockStats
}

func newFixture() *fixture {
	f := &fixture{
		sender:   &fakeSender{},
		events:   new(MockEvents),
		feed:     new(MockFeed),
		payments: new(MockPayments),
		stats:    new(MockStats),
	}
	f.bot = NewBot(f.sender, Deps{Events: f.events, Feed: f.feed, Payments: f.payments, Stats: f.stats}, []int64{adminID, 2}, logger.NewNop())
	f.bot.Now = func() time.Time { return fixedNow }
	return f
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

// ---------------- COMMANDS ----------------

func TestStart(t *testing.T) {
	f := newFixture()
	f.events.On("Register", mock.Anything, organizerID, "").Return(nil)
	f.events.On("Register", mock.Anything, adminID, "").Return(nil)

	f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/start"))
	assert.Contains(t, f.sender.lastText(), "/feed")
	assert.NotContains(t, f.sender.lastText(), "/pending")

	f.bot.HandleUpdate(context.Background(), commandUpdate(adminID, "/start"))
	assert.Contains(t, f.sender.lastText(), "/pending")
	f.events.AssertExpectations(t)
}

func TestUnknownAndAdminOnlyCommands(t *testing.T) {
	f := newFixture()

	f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/nope"))
	assert.Contains(t, f.sender.lastText(), "Не знаю такой команды")

	for _, cmd := range []string{"/pending", "/approve 3", "/reject 3", "/delete 3", "/stats"} {
		f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, cmd))
		assert.Contains(t, f.sender.lastText(), "только модераторам", cmd)
	}
	f.events.AssertNotCalled(t, "Pending", mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
	f.stats.AssertNotCalled(t, "Stats", mock.Anything)
}

func TestFeedCommands(t *testing.T) {
	items := []feed.Item{
		{Event: models.Event{ID: 1, Title: "Jazz", Category: "🎵 Концерт", EventDate: "02.06.2025"}, Start: fixedNow, End: fixedNow, Tier: promotion.TierNone},
		{Event: models.Event{ID: 2, Title: "Hamlet", Category: "🎭 Спектакль", EventDate: "03.06.2025"}, Start: fixedNow, End: fixedNow, Tier: promotion.TierTop},
	}

	tests := []struct {
		name    string
		command string
		filter  feed.Filter
	}{
		{"all", "/feed", feed.Filter{}},
		{"today", "/today", feed.Filter{Days: 1}},
		{"days", "/days 7", feed.Filter{Days: 7}},
		{"category", "/category концерт", feed.Filter{Category: "концерт"}},
		{"top", "/top", feed.Filter{OnlyPromoted: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.feed.On("Build", mock.Anything, tt.filter).Return(items, nil)

			f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, tt.command))

			texts := f.sender.texts()
			require.Len(t, texts, 2)
			assert.Contains(t, texts[0], "Jazz")
			assert.Contains(t, texts[1], badgeRecommended)
			f.feed.AssertExpectations(t)
		})
	}
}

func TestFeedEmptyAndInvalid(t *testing.T) {
	f := newFixture()
	f.feed.On("Build", mock.Anything, feed.Filter{}).Return([]feed.Item{}, nil)

	f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/feed"))
	assert.Contains(t, f.sender.lastText(), "ничего не нашлось")

	for _, cmd := range []string{"/days", "/days abc", "/days 0", "/days 1000"} {
		f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, cmd))
		assert.Contains(t, f.sender.lastText(), "/days 7", cmd)
	}

	f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/category"))
	assert.Contains(t, f.sender.lastText(), "🎭 Спектакль")
	f.feed.AssertNumberOfCalls(t, "Build", 1)
}

func TestFeedStoreFailure(t *testing.T) {
	f := newFixture()
	f.feed.On("Build", mock.Anything, feed.Filter{}).Return(nil, errors.New("database is locked"))

	f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/feed"))
	assert.Contains(t, f.sender.lastText(), "Что-то пошло не так")
	assert.NotContains(t, f.sender.lastText(), "locked")
}

func TestMyEvents(t *testing.T) {
	f := newFixture()
	until := fixedNow.Add(72 * time.Hour)
	f.events.On("OrganizerEvents", mock.Anything, organizerID, myEventsLimit, "").Return([]models.Event{
		{ID: 3, Title: "Jazz <live>", Status: models.EventStatusApproved, PromotedKind: models.PromoTop, PromotedUntil: &until},
		{ID: 4, Title: "Draft", Status: models.EventStatusPending},
	}, nil)

	f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/my"))

	text := f.sender.lastText()
	assert.Contains(t, text, "#3 ✅ <b>Jazz &lt;live&gt;</b> · ТОП на 7 дней до 04.06")
	assert.Contains(t, text, "#4 ⏳")
}

func TestBump(t *testing.T) {
	tests := []struct {
		name   string
		result events.Result
		err    error
		want   string
	}{
		{"ok", events.Result{OK: true}, nil, "поднято"},
		{"not owner", events.Result{Reason: models.ReasonNotOwner}, nil, "другому организатору"},
		{"not approved", events.Result{Reason: models.ReasonNotApproved}, nil, "не прошло модерацию"},
		{"missing", events.Result{Reason: models.ReasonNotFound}, nil, "не найдено"},
		{"store error", events.Result{}, errors.New("boom"), "Что-то пошло не так"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.events.On("Bump", mock.Anything, int64(3), organizerID).Return(tt.result, tt.err)

			f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/bump 3"))
			assert.Contains(t, f.sender.lastText(), tt.want)
		})
	}

	f := newFixture()
	f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/bump x"))
	assert.Contains(t, f.sender.lastText(), "Использование: /bump ID")
	f.events.AssertNotCalled(t, "Bump", mock.Anything, mock.Anything, mock.Anything)
}

func TestPromo(t *testing.T) {
	t.Run("lists catalog", func(t *testing.T) {
		f := newFixture()
		f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/promo 3"))
		text := f.sender.lastText()
		assert.Contains(t, text, "ТОП на 7 дней — 299 ₽")
		assert.Contains(t, text, "/promo 3 highlight")
		f.payments.AssertNotCalled(t, "StartPromotion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("sends QR with pay and check buttons", func(t *testing.T) {
		f := newFixture()
		top, _ := promotion.Lookup("top")
		f.payments.On("StartPromotion", mock.Anything, organizerID, int64(3), "top7").Return(&payment.Checkout{
			OrderID: 55, Service: top, Amount: 299, Currency: "RUB",
			PayURL: "https://pay.example/55", QR: []byte("\x89PNG"),
		}, nil)

		f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/promo 3 top7"))

		require.Len(t, f.sender.sent, 1)
		photo, ok := f.sender.sent[0].(tgbotapi.PhotoConfig)
		require.True(t, ok)
		assert.Contains(t, photo.Caption, "Заказ #55: ТОП на 7 дней — 299 RUB")
		kb, ok := photo.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		require.True(t, ok)
		require.Len(t, kb.InlineKeyboard, 2)
		require.NotNil(t, kb.InlineKeyboard[0][0].URL)
		assert.Equal(t, "https://pay.example/55", *kb.InlineKeyboard[0][0].URL)
		require.NotNil(t, kb.InlineKeyboard[1][0].CallbackData)
		assert.Equal(t, "check:55", *kb.InlineKeyboard[1][0].CallbackData)
	})

	t.Run("refusals", func(t *testing.T) {
		tests := []struct {
			err  error
			want string
		}{
			{&models.ValidationError{Field: "service", Message: "unknown"}, "Проверь данные"},
			{models.ErrOwnershipViolation, "другому организатору"},
			{models.ErrInvalidState, "ещё не одобрено"},
			{payment.ErrProviderUnavailable, "временно недоступен"},
		}
		for _, tt := range tests {
			f := newFixture()
			f.payments.On("StartPromotion", mock.Anything, organizerID, int64(3), "top").Return(nil, tt.err)
			f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/promo 3 top"))
			assert.Contains(t, f.sender.lastText(), tt.want)
		}
	})

	t.Run("payments disabled", func(t *testing.T) {
		f := newFixture()
		f.bot.Payments = nil
		f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/promo 3 top"))
		assert.Contains(t, f.sender.lastText(), "недоступна")
	})
}

func TestCheckPayment(t *testing.T) {
	tests := []struct {
		result payment.CheckResult
		want   string
	}{
		{payment.CheckPaid, "оплачен"},
		{payment.CheckPending, "ещё не поступила"},
		{payment.CheckCanceled, "отменён"},
	}
	for _, tt := range tests {
		t.Run(string(tt.result), func(t *testing.T) {
			f := newFixture()
			f.payments.On("CheckPayment", mock.Anything, int64(55)).Return(tt.result, nil)

			f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/check 55"))
			assert.Contains(t, f.sender.lastText(), tt.want)
		})
	}

	t.Run("callback answers the button", func(t *testing.T) {
		f := newFixture()
		f.payments.On("CheckPayment", mock.Anything, int64(55)).Return(payment.CheckPaid, nil)

		f.bot.HandleUpdate(context.Background(), callbackUpdate(organizerID, "check:55"))

		require.Len(t, f.sender.answers, 1)
		assert.Equal(t, "cb-1", f.sender.answers[0].CallbackQueryID)
		assert.Contains(t, f.sender.answers[0].Text, "оплачен")
	})

	t.Run("in progress", func(t *testing.T) {
		f := newFixture()
		f.payments.On("CheckPayment", mock.Anything, int64(55)).Return(payment.CheckResult(""), payment.ErrPaymentInProgress)

		f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/check 55"))
		assert.Contains(t, f.sender.texts()[0], "уже идёт")
	})

	t.Run("bad order number", func(t *testing.T) {
		f := newFixture()
		f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/check abc"))
		assert.Contains(t, f.sender.lastText(), "Неверный номер")
		f.payments.AssertNotCalled(t, "CheckPayment", mock.Anything, mock.Anything)
	})
}

func TestPendingQueue(t *testing.T) {
	f := newFixture()
	f.events.On("Pending", mock.Anything, pendingPageSize).Return([]models.Event{
		{ID: 3, OrganizerID: organizerID, Title: "Jazz", Category: "🎵 Концерт", Description: "Live", EventDate: "20.06.2025", EventTime: "19:00"},
	}, nil)

	f.bot.HandleUpdate(context.Background(), commandUpdate(adminID, "/pending"))

	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "#3 Jazz")
	assert.Contains(t, msg.Text, "20.06.2025 19:00")
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "approve:3", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "reject:3", *kb.InlineKeyboard[0][1].CallbackData)

	empty := newFixture()
	empty.events.On("Pending", mock.Anything, pendingPageSize).Return([]models.Event{}, nil)
	empty.bot.HandleUpdate(context.Background(), commandUpdate(adminID, "/pending"))
	assert.Contains(t, empty.sender.lastText(), "пуста")
}

func TestModeration(t *testing.T) {
	t.Run("approve command", func(t *testing.T) {
		f := newFixture()
		f.events.On("Approve", mock.Anything, int64(3), adminID).Return(events.Result{OK: true}, nil)
		f.bot.HandleUpdate(context.Background(), commandUpdate(adminID, "/approve 3"))
		assert.Contains(t, f.sender.lastText(), "одобрено")
	})

	t.Run("second decision is already handled", func(t *testing.T) {
		f := newFixture()
		f.events.On("Reject", mock.Anything, int64(3), adminID).Return(events.Result{Reason: models.ReasonAlreadyHandled}, nil)
		f.bot.HandleUpdate(context.Background(), commandUpdate(adminID, "/reject 3"))
		assert.Contains(t, f.sender.lastText(), "Уже обработано")
	})

	t.Run("callback from admin", func(t *testing.T) {
		f := newFixture()
		f.events.On("Reject", mock.Anything, int64(3), adminID).Return(events.Result{OK: true}, nil)
		f.bot.HandleUpdate(context.Background(), callbackUpdate(adminID, "reject:3"))
		require.Len(t, f.sender.answers, 1)
		assert.Contains(t, f.sender.answers[0].Text, "отклонено")
	})

	t.Run("callback from non-admin", func(t *testing.T) {
		f := newFixture()
		f.bot.HandleUpdate(context.Background(), callbackUpdate(organizerID, "approve:3"))
		require.Len(t, f.sender.answers, 1)
		assert.Equal(t, "Только для модераторов", f.sender.answers[0].Text)
		f.events.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delete", func(t *testing.T) {
		f := newFixture()
		f.events.On("Delete", mock.Anything, int64(3)).Return(events.Result{OK: true}, nil)
		f.events.On("Delete", mock.Anything, int64(4)).Return(events.Result{Reason: models.ReasonNotFound}, nil)

		f.bot.HandleUpdate(context.Background(), commandUpdate(adminID, "/delete 3"))
		assert.Contains(t, f.sender.lastText(), "удалено")
		f.bot.HandleUpdate(context.Background(), commandUpdate(adminID, "/delete 4"))
		assert.Contains(t, f.sender.lastText(), "не найдено")
	})

	t.Run("stale button", func(t *testing.T) {
		f := newFixture()
		f.bot.HandleUpdate(context.Background(), callbackUpdate(adminID, "something:1"))
		require.Len(t, f.sender.answers, 1)
		assert.Equal(t, "Кнопка устарела", f.sender.answers[0].Text)
	})
}

func TestStatsCommand(t *testing.T) {
	f := newFixture()
	f.stats.On("Stats", mock.Anything).Return(&analytics.Stats{
		EventsByStatus: map[string]int{"approved": 2, "pending": 1},
		OrdersByStatus: map[string]int{"paid": 1},
		UsersByRole:    map[string]int{"resident": 4},
		Revenue:        []analytics.Revenue{{Currency: "RUB", Orders: 1, Total: 299}},
	}, nil)

	f.bot.HandleUpdate(context.Background(), commandUpdate(adminID, "/stats"))

	text := f.sender.lastText()
	assert.Contains(t, text, "Мероприятий: 3")
	assert.Contains(t, text, "approved: 2\n  pending: 1")
	assert.Contains(t, text, "299 RUB (1 заказов)")
}

func TestPlainTextOutsideWizard(t *testing.T) {
	f := newFixture()
	f.bot.HandleUpdate(context.Background(), textUpdate(organizerID, "привет"))
	assert.Contains(t, f.sender.lastText(), "/feed")
}

func TestHandlerPanicIsContained(t *testing.T) {
	f := newFixture()
	f.bot.Feed = nil

	assert.NotPanics(t, func() {
		f.bot.HandleUpdate(context.Background(), commandUpdate(organizerID, "/feed"))
	})
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture()
	f.events.On("Register", mock.Anything, organizerID, "").Return(nil)

	updates := make(chan tgbotapi.Update, 1)
	updates <- commandUpdate(organizerID, "/start")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bot.Run(ctx, updates) }()

	assert.Eventually(t, func() bool { return len(f.sender.texts()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	closed := make(chan tgbotapi.Update)
	close(closed)
	assert.NoError(t, f.bot.Run(context.Background(), closed))
}
