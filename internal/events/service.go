package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventsnow/internal/kafka"
	"eventsnow/internal/logger"
	"eventsnow/internal/metrics"
	"eventsnow/internal/models"
)

type DBLayer interface {
	EnsureUser(ctx context.Context, id int64, role string) error
	CreateEvent(ctx context.Context, in models.NewEvent) (int64, error)
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	GetPendingEvents(ctx context.Context, limit int) ([]models.Event, error)
	GetOrganizerEvents(ctx context.Context, organizerID int64, limit int, status string) ([]models.Event, error)
	TransitionEventStatus(ctx context.Context, id int64, from, to string) (bool, error)
	BumpEvent(ctx context.Context, id, organizerID int64) (bool, string, error)
	DeleteEvent(ctx context.Context, id int64) (bool, error)
}

type Topics struct {
	Submitted string
	Moderated string
}

// Result is the outcome of an action the caller may be refused. Reason is set when OK is false.
type Result struct {
	OK     bool
	Reason string
}

func refused(reason string) Result { return Result{Reason: reason} }

type EventService struct {
	DB        DBLayer
	Publisher kafka.Publisher
	Topics    Topics
	Log       *logger.Logger
	Now       func() time.Time
}

func NewEventService(db DBLayer, publisher kafka.Publisher, topics Topics, log *logger.Logger) *EventService {
	return &EventService{DB: db, Publisher: publisher, Topics: topics, Log: log, Now: time.Now}
}

func (s *EventService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// ---------------- USERS ----------------

// Register records a user on first contact. An empty role keeps the stored one.
func (s *EventService) Register(ctx context.Context, userID int64, role string) error {
	return s.DB.EnsureUser(ctx, userID, role)
}

// ---------------- SUBMISSION ----------------

// Submit stores a new pending event for moderation.
func (s *EventService) Submit(ctx context.Context, in models.NewEvent) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	if err := s.DB.EnsureUser(ctx, in.OrganizerID, models.RoleOrganizer); err != nil {
		return 0, err
	}
	id, err := s.DB.CreateEvent(ctx, in)
	if err != nil {
		return 0, err
	}

	metrics.EventsSubmitted.Inc()
	s.Log.LogDatabase("INSERT", "events", fmt.Sprintf("event %d submitted by %d", id, in.OrganizerID))
	s.publish(ctx, s.Topics.Submitted, id, models.EventSubmittedEvent{
		EventID:     id,
		OrganizerID: in.OrganizerID,
		Title:       in.Title,
		Category:    in.Category,
		SubmittedAt: s.now(),
	})
	return id, nil
}

func (s *EventService) Get(ctx context.Context, id int64) (*models.Event, error) {
	return s.DB.GetEvent(ctx, id)
}

func (s *EventService) Pending(ctx context.Context, limit int) ([]models.Event, error) {
	return s.DB.GetPendingEvents(ctx, limit)
}

func (s *EventService) OrganizerEvents(ctx context.Context, organizerID int64, limit int, status string) ([]models.Event, error) {
	return s.DB.GetOrganizerEvents(ctx, organizerID, limit, status)
}

// ---------------- MODERATION ----------------

func (s *EventService) Approve(ctx context.Context, id, moderatorID int64) (Result, error) {
	return s.moderate(ctx, id, moderatorID, models.EventStatusApproved)
}

func (s *EventService) Reject(ctx context.Context, id, moderatorID int64) (Result, error) {
	return s.moderate(ctx, id, moderatorID, models.EventStatusRejected)
}

// moderate decides a pending event once. Decided events are refused as already handled.
func (s *EventService) moderate(ctx context.Context, id, moderatorID int64, status string) (Result, error) {
	ev, err := s.DB.GetEvent(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return refused(models.ReasonNotFound), nil
	}
	if err != nil {
		return Result{}, err
	}
	if ev.Status != models.EventStatusPending {
		return refused(models.ReasonAlreadyHandled), nil
	}

	changed, err := s.DB.TransitionEventStatus(ctx, id, models.EventStatusPending, status)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		return refused(models.ReasonAlreadyHandled), nil
	}

	metrics.ModerationDecisions.WithLabelValues(status).Inc()
	s.Log.Info("MODERATION", fmt.Sprintf("Event %d %s by %d", id, status, moderatorID))
	s.publish(ctx, s.Topics.Moderated, id, models.EventModeratedEvent{
		EventID:     id,
		Status:      status,
		ModeratorID: moderatorID,
		ModeratedAt: s.now(),
	})
	return Result{OK: true}, nil
}

// ---------------- ORGANIZER ACTIONS ----------------

// Bump refreshes the organizer's own approved event in the feed.
func (s *EventService) Bump(ctx context.Context, id, organizerID int64) (Result, error) {
	ok, reason, err := s.DB.BumpEvent(ctx, id, organizerID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return refused(reason), nil
	}
	s.Log.Info("EVENTS", fmt.Sprintf("Event %d bumped by %d", id, organizerID))
	return Result{OK: true}, nil
}

// Delete removes an event with its photos and orders.
func (s *EventService) Delete(ctx context.Context, id int64) (Result, error) {
	existed, err := s.DB.DeleteEvent(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !existed {
		return refused(models.ReasonNotFound), nil
	}
	s.Log.LogDatabase("DELETE", "events", fmt.Sprintf("event %d deleted", id))
	return Result{OK: true}, nil
}

func (s *EventService) publish(ctx context.Context, topic string, id int64, payload interface{}) {
	if s.Publisher == nil || topic == "" {
		return
	}
	if err := s.Publisher.Publish(ctx, topic, fmt.Sprint(id), payload); err != nil {
		s.Log.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for event %d: %v", topic, id, err))
	}
}
