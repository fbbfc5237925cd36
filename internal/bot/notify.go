package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"eventsnow/internal/models"
	"eventsnow/internal/promotion"
)

// ---------------- DOMAIN EVENT HANDLERS ----------------
// Each method matches kafka.Handler so it can be subscribed on the bus or a consumer.

// OnSubmitted → tell moderators about a new pending event
func (b *Bot) OnSubmitted(ctx context.Context, value []byte) error {
	var msg models.EventSubmittedEvent
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode submitted event: %w", err)
	}
	text := fmt.Sprintf("🆕 Новая заявка #%d: <b>%s</b> (%s)\nОткрыть очередь: /pending",
		msg.EventID, esc(msg.Title), esc(msg.Category))
	for _, id := range b.adminIDs() {
		b.replyHTML(id, text, nil)
	}
	return nil
}

// OnModerated → tell the organizer about the decision
func (b *Bot) OnModerated(ctx context.Context, value []byte) error {
	var msg models.EventModeratedEvent
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode moderated event: %w", err)
	}
	ev, err := b.Events.Get(ctx, msg.EventID)
	if err != nil {
		return fmt.Errorf("load event %d: %w", msg.EventID, err)
	}

	var text string
	switch msg.Status {
	case models.EventStatusApproved:
		text = fmt.Sprintf("✅ Мероприятие #%d «%s» одобрено и появилось в афише.\nХочешь больше зрителей? /promo %d",
			ev.ID, esc(ev.Title), ev.ID)
	case models.EventStatusRejected:
		text = fmt.Sprintf("🚫 Мероприятие #%d «%s» не прошло модерацию.", ev.ID, esc(ev.Title))
	default:
		return nil
	}
	b.replyHTML(ev.OrganizerID, text, nil)
	return nil
}

// OnPromoPaid → confirm the promotion to the organizer
func (b *Bot) OnPromoPaid(ctx context.Context, value []byte) error {
	var msg models.PromoPaidEvent
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode promo paid event: %w", err)
	}
	title := msg.Service
	if s, ok := promotion.Lookup(msg.Service); ok {
		title = s.Title
	}
	b.reply(msg.OrganizerID, fmt.Sprintf("💳 Оплата заказа #%d получена: «%s» для мероприятия #%d включено.",
		msg.OrderID, title, msg.EventID))
	return nil
}

func (b *Bot) adminIDs() []int64 {
	ids := make([]int64, 0, len(b.admins))
	for id := range b.admins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
