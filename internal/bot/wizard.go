package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow/internal/feed"
	"eventsnow/internal/models"
)

type step int

const (
	stepCategory step = iota
	stepCategoryText
	stepTitle
	stepDescription
	stepFormat
	stepDate
	stepTime
	stepStartDate
	stepEndDate
	stepOpenTime
	stepCloseTime
	stepSessionsStart
	stepSessionsEnd
	stepSessionsTimes
	stepLocation
	stepPrice
	stepTicket
	stepPhone
	stepPhotos
	stepConfirm
)

const (
	buttonBack   = "⬅️ Назад"
	buttonDone   = "✅ Готово"
	buttonOther  = "📌 Другое"
	buttonSingle = "📅 Одна дата"
	buttonPeriod = "🗓 Период"
	buttonSess   = "🕒 Сеансы"

	maxTitleLen       = 200
	maxDescriptionLen = 3000
)

// wizard is one organizer's submission in progress.
type wizard struct {
	mu      sync.Mutex
	step    step
	history []step
	ev      models.NewEvent
}

func (w *wizard) advance(next step) {
	w.history = append(w.history, w.step)
	w.step = next
}

func (w *wizard) back() bool {
	if len(w.history) == 0 {
		return false
	}
	w.step = w.history[len(w.history)-1]
	w.history = w.history[:len(w.history)-1]
	return true
}

func (b *Bot) wizardFor(chatID int64) *wizard {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wizards[chatID]
}

func (b *Bot) dropWizard(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.wizards[chatID]
	delete(b.wizards, chatID)
	return ok
}

func (b *Bot) cmdSubmit(ctx context.Context, m *tgbotapi.Message) {
	w := &wizard{step: stepCategory, ev: models.NewEvent{OrganizerID: m.From.ID, Format: models.FormatSingle}}
	b.mu.Lock()
	b.wizards[m.Chat.ID] = w
	b.mu.Unlock()

	b.reply(m.Chat.ID, "Добавим мероприятие! В любой момент: /cancel — отменить, «"+buttonBack+"» — вернуться на шаг.")
	b.prompt(m.Chat.ID, w)
}

func (b *Bot) cmdCancel(ctx context.Context, m *tgbotapi.Message) {
	text := "Нечего отменять."
	if b.dropWizard(m.Chat.ID) {
		text = "Заявка отменена."
	}
	msg := tgbotapi.NewMessage(m.Chat.ID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(msg)
}

func (b *Bot) cmdDone(ctx context.Context, m *tgbotapi.Message) {
	w := b.wizardFor(m.Chat.ID)
	if w == nil {
		b.reply(m.Chat.ID, "Сейчас нет заявки в работе. Начать: /submit")
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != stepPhotos {
		b.reply(m.Chat.ID, "Сначала ответь на текущий вопрос.")
		return
	}
	w.advance(stepConfirm)
	b.prompt(m.Chat.ID, w)
}

// continueWizard applies one answer to the current step.
func (b *Bot) continueWizard(ctx context.Context, m *tgbotapi.Message, w *wizard) {
	w.mu.Lock()
	defer w.mu.Unlock()

	chatID := m.Chat.ID
	text := strings.TrimSpace(m.Text)
	if text == buttonBack {
		if !w.back() {
			b.reply(chatID, "Это первый шаг.")
		}
		b.prompt(chatID, w)
		return
	}

	if problem := b.apply(w, m, text); problem != "" {
		b.reply(chatID, "⚠️ "+problem)
		return
	}
	b.prompt(chatID, w)
}

// apply stores the answer and moves the wizard on. It returns a hint when the answer is rejected.
func (b *Bot) apply(w *wizard, m *tgbotapi.Message, text string) string {
	ev := &w.ev
	switch w.step {
	case stepCategory:
		cat, ok := matchCategory(text)
		if !ok {
			return "Выбери категорию кнопкой."
		}
		ev.Category = cat
		if cat == buttonOther {
			w.advance(stepCategoryText)
		} else {
			ev.CategoryText = ""
			w.advance(stepTitle)
		}

	case stepCategoryText:
		if text == "" {
			return "Напиши, что это за мероприятие."
		}
		ev.CategoryText = text
		w.advance(stepTitle)

	case stepTitle:
		if text == "" || utf8.RuneCountInString(text) > maxTitleLen {
			return fmt.Sprintf("Название должно быть от 1 до %d символов.", maxTitleLen)
		}
		ev.Title = text
		w.advance(stepDescription)

	case stepDescription:
		if text == "" || utf8.RuneCountInString(text) > maxDescriptionLen {
			return fmt.Sprintf("Описание должно быть от 1 до %d символов.", maxDescriptionLen)
		}
		ev.Description = text
		w.advance(stepFormat)

	case stepFormat:
		switch text {
		case buttonSingle:
			ev.Format = models.FormatSingle
			w.advance(stepDate)
		case buttonPeriod:
			ev.Format = models.FormatPeriod
			w.advance(stepStartDate)
		case buttonSess:
			ev.Format = models.FormatSessions
			w.advance(stepSessionsStart)
		default:
			return "Выбери формат кнопкой."
		}
		ev.KeepOnlyFormatDates()

	case stepDate, stepStartDate, stepSessionsStart:
		date, problem := b.futureDate(text, "")
		if problem != "" {
			return problem
		}
		switch w.step {
		case stepDate:
			ev.EventDate = date
			w.advance(stepTime)
		case stepStartDate:
			ev.StartDate = date
			w.advance(stepEndDate)
		default:
			ev.SessionsStartDate = date
			w.advance(stepSessionsEnd)
		}

	case stepEndDate, stepSessionsEnd:
		from := ev.StartDate
		if w.step == stepSessionsEnd {
			from = ev.SessionsStartDate
		}
		date, problem := b.futureDate(text, from)
		if problem != "" {
			return problem
		}
		if w.step == stepEndDate {
			ev.EndDate = date
			w.advance(stepOpenTime)
		} else {
			ev.SessionsEndDate = date
			w.advance(stepSessionsTimes)
		}

	case stepTime, stepOpenTime, stepCloseTime:
		d, ok := feed.ParseClock(text)
		if !ok {
			return "Время в формате ЧЧ:ММ, например 19:00."
		}
		switch w.step {
		case stepTime:
			ev.EventTime = clock(d)
			w.advance(stepLocation)
		case stepOpenTime:
			ev.OpenTime = clock(d)
			w.advance(stepCloseTime)
		default:
			ev.CloseTime = clock(d)
			w.advance(stepLocation)
		}

	case stepSessionsTimes:
		times, ok := parseSessions(text)
		if !ok {
			return "Перечисли время сеансов через запятую, например: 12:00, 15:30, 19:00."
		}
		ev.SessionsTimes = times
		w.advance(stepLocation)

	case stepLocation:
		if text == "" {
			return "Укажи место проведения."
		}
		ev.Location = text
		w.advance(stepPrice)

	case stepPrice:
		if text == "" {
			return "Укажи стоимость или «Бесплатно»."
		}
		ev.PriceText = text
		w.advance(stepTicket)

	case stepTicket:
		if isNone(text) {
			ev.TicketLink = ""
		} else if link, ok := ticketURL(text); ok {
			ev.TicketLink = link
		} else {
			return "Нужна ссылка вида https://… или «Нет»."
		}
		w.advance(stepPhone)

	case stepPhone:
		if isNone(text) {
			ev.Phone = ""
		} else {
			ev.Phone = text
		}
		w.advance(stepPhotos)

	case stepPhotos:
		if text == buttonDone {
			w.advance(stepConfirm)
			return ""
		}
		if len(m.Photo) == 0 {
			return "Пришли фото или нажми «" + buttonDone + "»."
		}
		// the last size is the largest
		ev.PhotoFileIDs = append(ev.PhotoFileIDs, m.Photo[len(m.Photo)-1].FileID)
		if len(ev.PhotoFileIDs) >= models.MaxPhotos {
			w.advance(stepConfirm)
		}

	case stepConfirm:
		return "Нажми кнопку под превью: отправить или отменить."
	}
	return ""
}

// finishWizard handles the preview buttons and returns the callback answer.
func (b *Bot) finishWizard(ctx context.Context, chatID, userID int64, confirm bool) string {
	w := b.wizardFor(chatID)
	if w == nil {
		return "Заявка не найдена"
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != stepConfirm {
		return "Заявка ещё не заполнена"
	}
	if w.ev.OrganizerID != userID {
		return "Это не твоя заявка"
	}

	if !confirm {
		b.dropWizard(chatID)
		b.reply(chatID, "Заявка отменена.")
		return "Отменено"
	}

	id, err := b.Events.Submit(ctx, w.ev)
	if err != nil {
		b.failure(chatID, "submit", err)
		return "Не удалось отправить"
	}
	b.dropWizard(chatID)
	b.reply(chatID, fmt.Sprintf("🎉 Заявка #%d отправлена на модерацию. Мы сообщим о решении.", id))
	return "Отправлено"
}

func (b *Bot) prompt(chatID int64, w *wizard) {
	var (
		text   string
		markup interface{} = backKeyboard()
	)
	switch w.step {
	case stepCategory:
		text = "Выбери категорию:"
		markup = categoryKeyboard()
	case stepCategoryText:
		text = "Что это за мероприятие? Напиши коротко, например «Квиз»."
	case stepTitle:
		text = "Название мероприятия:"
	case stepDescription:
		text = "Описание: о чём событие, для кого, что взять с собой."
	case stepFormat:
		text = "Формат проведения:"
		markup = tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonSingle)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonPeriod)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonSess)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonBack)),
		)
	case stepDate:
		text = "Дата (ДД.ММ.ГГГГ):"
	case stepTime:
		text = "Время начала (ЧЧ:ММ):"
	case stepStartDate, stepSessionsStart:
		text = "Дата начала (ДД.ММ.ГГГГ):"
	case stepEndDate, stepSessionsEnd:
		text = "Дата окончания (ДД.ММ.ГГГГ):"
	case stepOpenTime:
		text = "Время открытия (ЧЧ:ММ):"
	case stepCloseTime:
		text = "Время закрытия (ЧЧ:ММ):"
	case stepSessionsTimes:
		text = "Время сеансов через запятую (например 12:00, 15:30):"
	case stepLocation:
		text = "Где проходит? Адрес или площадка:"
	case stepPrice:
		text = "Стоимость (или «Бесплатно»):"
	case stepTicket:
		text = "Ссылка на билеты (или «Нет»):"
	case stepPhone:
		text = "Телефон для связи (или «Нет»):"
	case stepPhotos:
		text = fmt.Sprintf("Пришли до %d фото (загружено %d). Когда закончишь, нажми «%s».",
			models.MaxPhotos, len(w.ev.PhotoFileIDs), buttonDone)
		markup = tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonDone)),
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonBack)),
		)
	case stepConfirm:
		b.sendPreview(chatID, w)
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	b.send(msg)
}

func (b *Bot) sendPreview(chatID int64, w *wizard) {
	intro := tgbotapi.NewMessage(chatID, "Проверь заявку:")
	intro.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(intro)

	ev := previewEvent(&w.ev)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Отправить", "submit:confirm"),
		tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", "submit:cancel"),
	))
	b.replyHTML(chatID, moderationText(&ev), keyboard)
}

func previewEvent(n *models.NewEvent) models.Event {
	ev := models.Event{
		OrganizerID:       n.OrganizerID,
		Category:          n.Category,
		CategoryText:      n.CategoryText,
		Title:             n.Title,
		Description:       n.Description,
		Format:            n.Format,
		EventDate:         n.EventDate,
		EventTime:         n.EventTime,
		StartDate:         n.StartDate,
		EndDate:           n.EndDate,
		OpenTime:          n.OpenTime,
		CloseTime:         n.CloseTime,
		SessionsStartDate: n.SessionsStartDate,
		SessionsEndDate:   n.SessionsEndDate,
		SessionsTimes:     n.SessionsTimes,
		Location:          n.Location,
		PriceText:         n.PriceText,
		TicketLink:        n.TicketLink,
		Phone:             n.Phone,
		Status:            models.EventStatusPending,
	}
	for i, id := range n.PhotoFileIDs {
		ev.Photos = append(ev.Photos, &models.EventPhoto{FileID: id, Position: i})
	}
	return ev
}

// futureDate parses a date that is not in the past and not before notBefore.
// It returns the normalized DD.MM.YYYY text.
func (b *Bot) futureDate(text, notBefore string) (string, string) {
	d, ok := feed.ParseDate(text)
	if !ok {
		return "", "Дата в формате ДД.ММ.ГГГГ, например 25.12.2025."
	}
	now := b.Now()
	today, _ := feed.ParseDate(now.Format("02.01.2006"))
	if d.Before(today) {
		return "", "Эта дата уже прошла."
	}
	if from, ok := feed.ParseDate(notBefore); ok && d.Before(from) {
		return "", "Дата окончания не может быть раньше начала."
	}
	return d.Format("02.01.2006"), ""
}

func parseSessions(text string) (string, bool) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n'
	})
	if len(fields) == 0 {
		return "", false
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		d, ok := feed.ParseClock(f)
		if !ok {
			return "", false
		}
		out = append(out, clock(d))
	}
	return strings.Join(out, ", "), true
}

// matchCategory accepts a button text or a typed name like "концерт".
func matchCategory(text string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return "", false
	}
	for _, c := range categories {
		if c == text || strings.Contains(strings.ToLower(c), needle) {
			return c, true
		}
	}
	return "", false
}

func isNone(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "-", "—", "нет", "no", "none":
		return true
	}
	return false
}

func categoryKeyboard() tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(categories)/2+1)
	for i := 0; i < len(categories); i += 2 {
		row := tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(categories[i]))
		if i+1 < len(categories) {
			row = append(row, tgbotapi.NewKeyboardButton(categories[i+1]))
		}
		rows = append(rows, row)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = true
	return kb
}

func backKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonBack)))
}
