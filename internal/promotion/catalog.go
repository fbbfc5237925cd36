package promotion

import (
	"strings"
	"time"

	"eventsnow/internal/models"
)

// Service is one purchasable placement.
type Service struct {
	Kind     string
	Title    string
	Price    int64
	Duration time.Duration // zero means untimed
}

// Until returns the expiry for a placement bought at now, or nil when untimed.
func (s Service) Until(now time.Time) *time.Time {
	if s.Duration == 0 {
		return nil
	}
	t := now.Add(s.Duration).UTC()
	return &t
}

var catalog = []Service{
	{Kind: models.PromoTop, Title: "ТОП на 7 дней", Price: 299, Duration: 7 * 24 * time.Hour},
	{Kind: models.PromoHighlight, Title: "Подсветка на 3 дня", Price: 249, Duration: 3 * 24 * time.Hour},
	{Kind: models.PromoBump, Title: "Поднятие в ленте", Price: 149},
	{Kind: models.PromoNotify, Title: "Рассылка подписчикам", Price: 199},
}

var aliases = map[string]string{
	"top7":        models.PromoTop,
	"топ":         models.PromoTop,
	"pin3":        models.PromoHighlight,
	"подсветка":   models.PromoHighlight,
	"highlighted": models.PromoHighlight,
	"up":          models.PromoBump,
	"поднятие":    models.PromoBump,
	"broadcast":   models.PromoNotify,
	"рассылка":    models.PromoNotify,
}

// Catalog returns the services in display order.
func Catalog() []Service {
	out := make([]Service, len(catalog))
	copy(out, catalog)
	return out
}

// Normalize maps a stored or user-typed kind to its canonical form.
// Unknown kinds are returned lowercased.
func Normalize(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	if canonical, ok := aliases[k]; ok {
		return canonical
	}
	return k
}

// Lookup finds a catalog entry by kind or alias.
func Lookup(kind string) (Service, bool) {
	k := Normalize(kind)
	for _, s := range catalog {
		if s.Kind == k {
			return s, true
		}
	}
	return Service{}, false
}
