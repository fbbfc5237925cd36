package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"eventsnow/internal/models"
)

// DB is the event repository. Now is injectable for tests.
type DB struct {
	Bun *bun.DB
	Now func() time.Time
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB, Now: time.Now}
}

func (d *DB) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

type txKey struct{}

// conn → the transaction opened by InTx for this ctx, or the pool
func (d *DB) conn(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return d.Bun
}

// InTx → run fn inside one transaction. Repository calls made with the ctx handed
// to fn join it; a nested InTx reuses the outer transaction.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// ---------------- USERS ----------------

// EnsureUser → insert the user if absent; a non-empty role overwrites the stored one
func (d *DB) EnsureUser(ctx context.Context, id int64, role string) error {
	return ensureUser(ctx, d.conn(ctx), id, role, d.now())
}

func ensureUser(ctx context.Context, db bun.IDB, id int64, role string, now time.Time) error {
	user := &models.User{ID: id, Role: role, CreatedAt: now}
	q := db.NewInsert().Model(user)
	if role == "" {
		user.Role = models.RoleResident
		q = q.On("CONFLICT (id) DO NOTHING")
	} else {
		q = q.On("CONFLICT (id) DO UPDATE").Set("role = EXCLUDED.role")
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("ensure user %d: %w", id, err)
	}
	return nil
}

// GetUser → fetch one user or ErrNotFound
func (d *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := d.conn(ctx).NewSelect().Model(&user).Where("u.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

// ---------------- EVENTS ----------------

// CreateEvent → insert a pending event plus up to MaxPhotos photos in one transaction
func (d *DB) CreateEvent(ctx context.Context, in models.NewEvent) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	in.KeepOnlyFormatDates()
	format := in.Format
	if format == "" {
		format = models.FormatSingle
	}

	now := d.now()
	ev := &models.Event{
		OrganizerID:       in.OrganizerID,
		Category:          strings.TrimSpace(in.Category),
		CategoryText:      strings.TrimSpace(in.CategoryText),
		Title:             strings.TrimSpace(in.Title),
		Description:       strings.TrimSpace(in.Description),
		Format:            format,
		EventDate:         strings.TrimSpace(in.EventDate),
		EventTime:         strings.TrimSpace(in.EventTime),
		StartDate:         strings.TrimSpace(in.StartDate),
		EndDate:           strings.TrimSpace(in.EndDate),
		OpenTime:          strings.TrimSpace(in.OpenTime),
		CloseTime:         strings.TrimSpace(in.CloseTime),
		SessionsStartDate: strings.TrimSpace(in.SessionsStartDate),
		SessionsEndDate:   strings.TrimSpace(in.SessionsEndDate),
		SessionsTimes:     strings.TrimSpace(in.SessionsTimes),
		Location:          strings.TrimSpace(in.Location),
		PriceText:         strings.TrimSpace(in.PriceText),
		TicketLink:        strings.TrimSpace(in.TicketLink),
		Phone:             strings.TrimSpace(in.Phone),
		Status:            models.EventStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if end, ok := ev.LastDate(); ok {
		ev.EndsOn = &end
	}

	photos := make([]models.EventPhoto, 0, models.MaxPhotos)
	for _, fileID := range in.PhotoFileIDs {
		if fileID == "" {
			continue
		}
		if len(photos) == models.MaxPhotos {
			break
		}
		photos = append(photos, models.EventPhoto{
			FileID:    fileID,
			Position:  len(photos) + 1,
			CreatedAt: now,
		})
	}

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		organizer := &models.User{ID: in.OrganizerID, Role: models.RoleOrganizer, CreatedAt: now}
		if _, err := tx.NewInsert().Model(organizer).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("ensure organizer: %w", err)
		}
		if _, err := tx.NewInsert().Model(ev).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if len(photos) == 0 {
			return nil
		}
		for i := range photos {
			photos[i].EventID = ev.ID
		}
		if _, err := tx.NewInsert().Model(&photos).Exec(ctx); err != nil {
			return fmt.Errorf("insert photos: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}
	return ev.ID, nil
}

// GetEvent → event with photos ordered by position, or ErrNotFound
func (d *DB) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	var ev models.Event
	err := d.conn(ctx).NewSelect().
		Model(&ev).
		Relation("Photos", orderPhotos).
		Where("e.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return &ev, nil
}

func orderPhotos(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("position ASC")
}

// GetEventPhotos → photo file ids in position order
func (d *DB) GetEventPhotos(ctx context.Context, eventID int64) ([]string, error) {
	var ids []string
	err := d.conn(ctx).NewSelect().
		Model((*models.EventPhoto)(nil)).
		Column("file_id").
		Where("event_id = ?", eventID).
		Order("position ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("get photos for event %d: %w", eventID, err)
	}
	return ids, nil
}

// GetFirstPhotos → cover photo per event id; events without photos are absent from the map
func (d *DB) GetFirstPhotos(ctx context.Context, eventIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	var photos []models.EventPhoto
	err := d.conn(ctx).NewSelect().
		Model(&photos).
		Where("event_id IN (?)", bun.In(eventIDs)).
		Order("event_id ASC", "position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get cover photos: %w", err)
	}
	for _, p := range photos {
		if _, ok := out[p.EventID]; !ok {
			out[p.EventID] = p.FileID
		}
	}
	return out, nil
}

// GetPendingEvents → pending events, oldest submission first
func (d *DB) GetPendingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var events []models.Event
	err := d.conn(ctx).NewSelect().
		Model(&events).
		Relation("Photos", orderPhotos).
		Where("e.status = ?", models.EventStatusPending).
		Order("e.created_at ASC", "e.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get pending events: %w", err)
	}
	return events, nil
}

// GetOrganizerEvents → organizer's events, newest first; empty status means any
func (d *DB) GetOrganizerEvents(ctx context.Context, organizerID int64, limit int, status string) ([]models.Event, error) {
	var events []models.Event
	q := d.conn(ctx).NewSelect().
		Model(&events).
		Where("e.organizer_id = ?", organizerID)
	if status != "" {
		q = q.Where("e.status = ?", status)
	}
	err := q.Order("e.created_at DESC", "e.id DESC").Limit(limit).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get events of organizer %d: %w", organizerID, err)
	}
	return events, nil
}

// SetEventStatus → conditional status update; false when the id is absent or already in that status
func (d *DB) SetEventStatus(ctx context.Context, id int64, status string) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", d.now()).
		Where("id = ?", id).
		Where("status <> ?", status).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("set status of event %d: %w", id, err)
	}
	return affected(res)
}

// TransitionEventStatus → from → to only while the event is still in from
func (d *DB) TransitionEventStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", d.now()).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("move event %d from %s to %s: %w", id, from, to, err)
	}
	return affected(res)
}

func (d *DB) ApproveEvent(ctx context.Context, id int64) (bool, error) {
	return d.SetEventStatus(ctx, id, models.EventStatusApproved)
}

func (d *DB) RejectEvent(ctx context.Context, id int64) (bool, error) {
	return d.SetEventStatus(ctx, id, models.EventStatusRejected)
}

// BumpEvent → refresh bumped_at on the organizer's own approved event
func (d *DB) BumpEvent(ctx context.Context, id, organizerID int64) (bool, string, error) {
	var ev models.Event
	err := d.conn(ctx).NewSelect().
		Model(&ev).
		Column("id", "organizer_id", "status").
		Where("e.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, models.ReasonNotFound, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("bump event %d: %w", id, err)
	}
	if ev.OrganizerID != organizerID {
		return false, models.ReasonNotOwner, nil
	}
	if ev.Status != models.EventStatusApproved {
		return false, models.ReasonNotApproved, nil
	}

	now := d.now()
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("bumped_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("organizer_id = ?", organizerID).
		Where("status = ?", models.EventStatusApproved).
		Exec(ctx)
	if err != nil {
		return false, "", fmt.Errorf("bump event %d: %w", id, err)
	}
	if ok, err := affected(res); err != nil || !ok {
		return false, models.ReasonNotApproved, err
	}
	return true, "", nil
}

// DeleteEvent → remove the event with its orders and photos; reports whether it existed
func (d *DB) DeleteEvent(ctx context.Context, id int64) (bool, error) {
	var existed bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.PromoOrder)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		if _, err := tx.NewDelete().Model((*models.EventPhoto)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete photos: %w", err)
		}
		res, err := tx.NewDelete().Model((*models.Event)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		existed, err = affected(res)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete event %d: %w", id, err)
	}
	return existed, nil
}

// ListFeedCandidates → approved events that have not ended; onlyMarked keeps rows carrying any
// promotion marker. The end cutoff is a day early so any feed timezone sees today's events.
// Rows without a parsed end date always pass.
func (d *DB) ListFeedCandidates(ctx context.Context, onlyMarked bool) ([]models.Event, error) {
	now := d.now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, time.UTC)

	var events []models.Event
	q := d.conn(ctx).NewSelect().
		Model(&events).
		Where("e.status = ?", models.EventStatusApproved).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("e.ends_on IS NULL").WhereOr("e.ends_on >= ?", cutoff)
		})
	if onlyMarked {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("e.promoted_kind <> ''").
				WhereOr("e.highlighted = ?", true).
				WhereOr("e.bumped_at IS NOT NULL")
		})
	}
	if err := q.Order("e.id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list feed candidates: %w", err)
	}
	return events, nil
}

// SetEventPromoted → write the promotion fields; highlight also sets the flag, bump also refreshes bumped_at
func (d *DB) SetEventPromoted(ctx context.Context, eventID int64, kind string, until *time.Time) (bool, error) {
	now := d.now()
	q := d.conn(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("promoted_kind = ?", kind).
		Set("promoted_at = ?", now).
		Set("promoted_until = ?", until).
		Set("updated_at = ?", now).
		Where("id = ?", eventID)
	switch kind {
	case models.PromoHighlight:
		q = q.Set("highlighted = ?", true)
	case models.PromoBump:
		q = q.Set("bumped_at = ?", now)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("promote event %d: %w", eventID, err)
	}
	return affected(res)
}

// MarkBumped → refresh bumped_at without touching ownership or promotion kind
func (d *DB) MarkBumped(ctx context.Context, eventID int64) (bool, error) {
	now := d.now()
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("bumped_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark event %d bumped: %w", eventID, err)
	}
	return affected(res)
}

// ---------------- PROMO ORDERS ----------------

// CreatePromoOrder → new order in created state with an empty payload
func (d *DB) CreatePromoOrder(ctx context.Context, organizerID, eventID int64, service string, amount int64, currency, provider string) (int64, error) {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	order := &models.PromoOrder{
		OrganizerID: organizerID,
		EventID:     eventID,
		Service:     service,
		Amount:      amount,
		Currency:    currency,
		Status:      models.OrderStatusCreated,
		Provider:    provider,
		Payload:     map[string]any{},
		CreatedAt:   d.now(),
	}
	if _, err := d.conn(ctx).NewInsert().Model(order).Returning("id").Exec(ctx); err != nil {
		return 0, fmt.Errorf("create promo order for event %d: %w", eventID, err)
	}
	return order.ID, nil
}

// AttachPayment → store the provider payment id and its raw response
func (d *DB) AttachPayment(ctx context.Context, orderID int64, externalID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for order %d: %w", orderID, err)
	}
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.PromoOrder)(nil)).
		Set("external_id = ?", externalID).
		Set("payload_json = ?", string(raw)).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("attach payment to order %d: %w", orderID, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotFound
	}
	return nil
}

// GetOrder → one order with its payload decoded, or ErrNotFound
func (d *DB) GetOrder(ctx context.Context, id int64) (*models.PromoOrder, error) {
	return d.getOrderWhere(ctx, "po.id = ?", id)
}

// GetOrderByExternalID → order by provider payment id, or ErrNotFound
func (d *DB) GetOrderByExternalID(ctx context.Context, externalID string) (*models.PromoOrder, error) {
	return d.getOrderWhere(ctx, "po.external_id = ?", externalID)
}

func (d *DB) getOrderWhere(ctx context.Context, where string, arg interface{}) (*models.PromoOrder, error) {
	var order models.PromoOrder
	err := d.conn(ctx).NewSelect().Model(&order).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get promo order: %w", err)
	}
	if order.Payload == nil {
		order.Payload = map[string]any{}
	}
	return &order, nil
}

// GetOrdersAwaitingPayment → created orders with a provider id, created after the cutoff, oldest first
func (d *DB) GetOrdersAwaitingPayment(ctx context.Context, createdAfter time.Time, limit int) ([]models.PromoOrder, error) {
	var orders []models.PromoOrder
	err := d.conn(ctx).NewSelect().
		Model(&orders).
		Where("po.status = ?", models.OrderStatusCreated).
		Where("po.external_id IS NOT NULL").
		Where("po.created_at >= ?", createdAfter.UTC()).
		Order("po.created_at ASC", "po.id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get awaiting orders: %w", err)
	}
	return orders, nil
}

// MarkOrderPaid → created → paid exactly once. A repeat on a paid order is (false, nil).
func (d *DB) MarkOrderPaid(ctx context.Context, id int64, externalRef string) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.PromoOrder)(nil)).
		Set("status = ?", models.OrderStatusPaid).
		Set("paid_at = ?", d.now()).
		Set("external_id = COALESCE(NULLIF(?, ''), external_id)", externalRef).
		Where("id = ?", id).
		Where("status = ?", models.OrderStatusCreated).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark order %d paid: %w", id, err)
	}
	changed, err := affected(res)
	if err != nil || changed {
		return changed, err
	}
	return false, d.explainUnchangedOrder(ctx, id, models.OrderStatusPaid)
}

// CancelOrder → created → canceled. A repeat on a canceled order is (false, nil).
func (d *DB) CancelOrder(ctx context.Context, id int64) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.PromoOrder)(nil)).
		Set("status = ?", models.OrderStatusCanceled).
		Where("id = ?", id).
		Where("status = ?", models.OrderStatusCreated).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("cancel order %d: %w", id, err)
	}
	changed, err := affected(res)
	if err != nil || changed {
		return changed, err
	}
	return false, d.explainUnchangedOrder(ctx, id, models.OrderStatusCanceled)
}

// explainUnchangedOrder returns nil when the order already sits in target,
// ErrNotFound when it is missing and ErrInvalidState otherwise.
func (d *DB) explainUnchangedOrder(ctx context.Context, id int64, target string) error {
	order, err := d.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.Status == target {
		return nil
	}
	return fmt.Errorf("order %d is %s: %w", id, order.Status, models.ErrInvalidState)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
