package promotion

import (
	"time"

	"eventsnow/internal/models"
)

// Tier is the feed priority class; lower ranks first.
type Tier int

const (
	TierTop Tier = iota
	TierHighlight
	TierPromoted
	TierNone
)

func (t Tier) String() string {
	switch t {
	case TierTop:
		return "top"
	case TierHighlight:
		return "highlight"
	case TierPromoted:
		return "promoted"
	default:
		return "none"
	}
}

// IsActive reports whether the event carries a promotion that has not expired.
func IsActive(ev *models.Event, now time.Time) bool {
	if ev.PromotedKind == "" {
		return false
	}
	return ev.PromotedUntil == nil || !ev.PromotedUntil.Before(now)
}

// TierOf ranks an event. An expired placement never outranks an active one.
func TierOf(ev *models.Event, now time.Time) Tier {
	active := IsActive(ev, now)
	kind := Normalize(ev.PromotedKind)

	switch {
	case active && kind == models.PromoTop:
		return TierTop
	case ev.Highlighted || (active && kind == models.PromoHighlight):
		return TierHighlight
	case active || ev.BumpedAt != nil:
		return TierPromoted
	default:
		return TierNone
	}
}

// Qualifies reports whether the event belongs in the promoted-only feed.
// An active notify broadcast alone does not.
func Qualifies(ev *models.Event, now time.Time) bool {
	switch TierOf(ev, now) {
	case TierTop, TierHighlight:
		return true
	case TierPromoted:
		if ev.BumpedAt != nil {
			return true
		}
		return Normalize(ev.PromotedKind) != models.PromoNotify
	default:
		return false
	}
}
