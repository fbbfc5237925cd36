package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"eventsnow/internal/logger"
	"eventsnow/internal/metrics"
	"eventsnow/internal/models"
	"eventsnow/internal/promotion"
)

const DefaultLimit = 10

// Filter narrows the resident feed. Zero values disable each filter.
type Filter struct {
	Days         int
	Category     string
	OnlyPromoted bool
	Limit        int
}

// Label names the filter for metrics and logs.
func (f Filter) Label() string {
	switch {
	case f.OnlyPromoted:
		return "top"
	case f.Category != "":
		return "category"
	case f.Days == 1:
		return "today"
	case f.Days > 0:
		return "days"
	default:
		return "all"
	}
}

// Item is one ranked feed entry.
type Item struct {
	Event      models.Event
	Start      time.Time
	End        time.Time
	Time       time.Duration
	HasTime    bool
	Tier       promotion.Tier
	CoverPhoto string
}

type DBLayer interface {
	ListFeedCandidates(ctx context.Context, onlyMarked bool) ([]models.Event, error)
	GetFirstPhotos(ctx context.Context, eventIDs []int64) (map[int64]string, error)
}

type Builder struct {
	DB           DBLayer
	Log          *logger.Logger
	Now          func() time.Time
	Location     *time.Location
	DefaultLimit int
}

func NewBuilder(db DBLayer, loc *time.Location, defaultLimit int, log *logger.Logger) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Builder{DB: db, Log: log, Now: time.Now, Location: loc, DefaultLimit: defaultLimit}
}

// Build returns the ranked, truncated feed for f.
func (b *Builder) Build(ctx context.Context, f Filter) ([]Item, error) {
	if f.Limit <= 0 {
		f.Limit = b.DefaultLimit
	}

	events, err := b.DB.ListFeedCandidates(ctx, f.OnlyPromoted)
	if err != nil {
		return nil, fmt.Errorf("build feed: %w", err)
	}

	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	items := Select(events, f, now, b.Location)

	if len(items) > 0 {
		ids := make([]int64, len(items))
		for i := range items {
			ids[i] = items[i].Event.ID
		}
		covers, err := b.DB.GetFirstPhotos(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("build feed: %w", err)
		}
		for i := range items {
			items[i].CoverPhoto = covers[items[i].Event.ID]
		}
	}

	metrics.FeedRequests.WithLabelValues(f.Label()).Inc()
	metrics.FeedResults.Observe(float64(len(items)))
	if b.Log != nil {
		b.Log.Debug("FEED", fmt.Sprintf("filter=%s candidates=%d returned=%d", f.Label(), len(events), len(items)))
	}
	return items, nil
}

// Select filters, ranks and truncates events as seen at now in loc. Events are
// expected to be approved already.
func Select(events []models.Event, f Filter, now time.Time, loc *time.Location) []Item {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	clock := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	category := strings.ToLower(strings.TrimSpace(f.Category))

	items := make([]Item, 0, len(events))
	for i := range events {
		ev := &events[i]
		if ev.Status != "" && ev.Status != models.EventStatusApproved {
			continue
		}

		start, ok := EffectiveStart(ev)
		if !ok {
			continue
		}
		end := EffectiveEnd(ev, start)
		tod, hasTime := EffectiveTime(ev)

		if end.Before(today) {
			continue
		}
		if end.Equal(today) && hasTime && tod < clock {
			continue
		}
		if f.Days > 0 && start.After(today.AddDate(0, 0, f.Days-1)) {
			continue
		}
		if category != "" &&
			!strings.Contains(strings.ToLower(ev.Category), category) &&
			!strings.Contains(strings.ToLower(ev.CategoryText), category) {
			continue
		}
		if f.OnlyPromoted && !promotion.Qualifies(ev, now) {
			continue
		}

		items = append(items, Item{
			Event:   *ev,
			Start:   start,
			End:     end,
			Time:    tod,
			HasTime: hasTime,
			Tier:    promotion.TierOf(ev, now),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return less(&items[i], &items[j])
	})

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func less(a, b *Item) bool {
	if a.Tier != b.Tier {
		return a.Tier < b.Tier
	}
	if a.Event.Highlighted != b.Event.Highlighted {
		return a.Event.Highlighted
	}
	switch {
	case a.Event.BumpedAt != nil && b.Event.BumpedAt == nil:
		return true
	case a.Event.BumpedAt == nil && b.Event.BumpedAt != nil:
		return false
	case a.Event.BumpedAt != nil && !a.Event.BumpedAt.Equal(*b.Event.BumpedAt):
		return a.Event.BumpedAt.After(*b.Event.BumpedAt)
	}
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	if a.HasTime != b.HasTime {
		return !a.HasTime
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.Event.ID > b.Event.ID
}
