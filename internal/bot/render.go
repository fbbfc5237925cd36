package bot

import (
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow/internal/analytics"
	"eventsnow/internal/feed"
	"eventsnow/internal/models"
	"eventsnow/internal/promotion"
)

// categories are the wizard buttons; the stored category is the button text.
var categories = []string{
	"🎵 Концерт",
	"🎭 Спектакль",
	"🧑‍🎓 Мастер-класс",
	"🖼 Выставка",
	"🎤 Лекция",
	"📌 Другое",
}

const (
	badgeRecommended = "🔥 Рекомендуем"
	captionLimit     = 1024
)

// sendCard posts one feed entry, as a photo with caption when the event has one.
func (b *Bot) sendCard(chatID int64, it *feed.Item) {
	text := cardText(it)
	var markup interface{}
	if link, ok := ticketURL(it.Event.TicketLink); ok {
		markup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🎟 Билеты", link),
		))
	}

	if it.CoverPhoto != "" && len([]rune(text)) <= captionLimit {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(it.CoverPhoto))
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			photo.ReplyMarkup = markup
		}
		b.send(photo)
		return
	}
	b.replyHTML(chatID, text, markup)
}

func cardText(it *feed.Item) string {
	ev := &it.Event
	var sb strings.Builder
	if it.Tier == promotion.TierTop || it.Tier == promotion.TierHighlight {
		sb.WriteString(badgeRecommended + "\n")
	}
	fmt.Fprintf(&sb, "<b>%s</b>\n", esc(ev.Title))
	fmt.Fprintf(&sb, "%s\n", esc(categoryLabel(ev)))
	fmt.Fprintf(&sb, "📅 %s\n", esc(whenText(it)))
	if ev.Location != "" {
		fmt.Fprintf(&sb, "📍 %s\n", esc(ev.Location))
	}
	if ev.PriceText != "" {
		fmt.Fprintf(&sb, "💰 %s\n", esc(ev.PriceText))
	}
	if ev.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", esc(ev.Description))
	}
	if ev.Phone != "" {
		fmt.Fprintf(&sb, "\n☎️ %s", esc(ev.Phone))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func whenText(it *feed.Item) string {
	ev := &it.Event
	date := it.Start.Format("02.01.2006")
	if !it.End.IsZero() && !sameDay(it.Start, it.End) {
		date += " – " + it.End.Format("02.01.2006")
	}

	switch ev.Format {
	case models.FormatPeriod:
		if ev.OpenTime != "" && ev.CloseTime != "" {
			return fmt.Sprintf("%s, %s–%s", date, ev.OpenTime, ev.CloseTime)
		}
	case models.FormatSessions:
		if times := ev.SessionTimes(); len(times) > 0 {
			return fmt.Sprintf("%s, сеансы: %s", date, strings.Join(times, ", "))
		}
	}
	if it.HasTime {
		return fmt.Sprintf("%s, %s", date, clock(it.Time))
	}
	return date
}

func categoryLabel(ev *models.Event) string {
	if ev.CategoryText != "" && ev.CategoryText != ev.Category {
		return ev.Category + " · " + ev.CategoryText
	}
	return ev.Category
}

// ticketURL accepts only absolute http(s) links; "нет", "-" and the like are dropped.
func ticketURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return raw, true
}

func organizerLine(ev *models.Event, now time.Time) string {
	line := fmt.Sprintf("#%d %s <b>%s</b>", ev.ID, statusIcon(ev.Status), esc(ev.Title))
	if promotion.IsActive(ev, now) {
		line += " · " + promoLabel(ev)
	}
	return line
}

func promoLabel(ev *models.Event) string {
	s, ok := promotion.Lookup(ev.PromotedKind)
	if !ok {
		return ev.PromotedKind
	}
	if ev.PromotedUntil != nil {
		return fmt.Sprintf("%s до %s", s.Title, ev.PromotedUntil.Format("02.01"))
	}
	return s.Title
}

func statusIcon(status string) string {
	switch status {
	case models.EventStatusApproved:
		return "✅"
	case models.EventStatusRejected:
		return "🚫"
	default:
		return "⏳"
	}
}

func moderationText(ev *models.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>#%d %s</b>\n%s\n", ev.ID, esc(ev.Title), esc(categoryLabel(ev)))
	fmt.Fprintf(&sb, "Организатор: <code>%d</code>\n", ev.OrganizerID)
	fmt.Fprintf(&sb, "Когда: %s\n", esc(rawWhen(ev)))
	if ev.Location != "" {
		fmt.Fprintf(&sb, "Где: %s\n", esc(ev.Location))
	}
	if ev.PriceText != "" {
		fmt.Fprintf(&sb, "Цена: %s\n", esc(ev.PriceText))
	}
	if ev.TicketLink != "" {
		fmt.Fprintf(&sb, "Билеты: %s\n", esc(ev.TicketLink))
	}
	if ev.Phone != "" {
		fmt.Fprintf(&sb, "Телефон: %s\n", esc(ev.Phone))
	}
	if n := len(ev.Photos); n > 0 {
		fmt.Fprintf(&sb, "Фото: %d\n", n)
	}
	fmt.Fprintf(&sb, "\n%s", esc(ev.Description))
	return sb.String()
}

// rawWhen shows dates as typed, for events that have not been parsed into a feed item.
func rawWhen(ev *models.Event) string {
	switch ev.Format {
	case models.FormatPeriod:
		return fmt.Sprintf("%s – %s, %s–%s", ev.StartDate, ev.EndDate, ev.OpenTime, ev.CloseTime)
	case models.FormatSessions:
		return fmt.Sprintf("%s – %s, сеансы: %s", ev.SessionsStartDate, ev.SessionsEndDate, ev.SessionsTimes)
	default:
		return strings.TrimSpace(ev.EventDate + " " + ev.EventTime)
	}
}

func statsText(st *analytics.Stats) string {
	var sb strings.Builder
	sb.WriteString("<b>📊 Статистика</b>\n\n")
	fmt.Fprintf(&sb, "Мероприятий: %d\n", st.TotalEvents())
	writeCounts(&sb, st.EventsByStatus)
	sb.WriteString("\nЗаказы продвижения:\n")
	writeCounts(&sb, st.OrdersByStatus)
	sb.WriteString("\nПользователи:\n")
	writeCounts(&sb, st.UsersByRole)
	if len(st.Revenue) > 0 {
		sb.WriteString("\nВыручка:\n")
		for _, r := range st.Revenue {
			fmt.Fprintf(&sb, "  %d %s (%d заказов)\n", r.Total, r.Currency, r.Orders)
		}
	}
	for _, r := range st.RevenueByService {
		fmt.Fprintf(&sb, "  · %s: %d %s\n", r.Service, r.Total, r.Currency)
	}
	return sb.String()
}

func writeCounts(sb *strings.Builder, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "  %s: %d\n", k, counts[k])
	}
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func esc(s string) string { return html.EscapeString(s) }
