package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"eventsnow/internal/models"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateTable().
			Model((*models.User)(nil)).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create users: %w", err)
		}

		if _, err := db.NewCreateTable().
			Model((*models.Event)(nil)).
			IfNotExists().
			ForeignKey(`("organizer_id") REFERENCES "users" ("id")`).
			Exec(ctx); err != nil {
			return fmt.Errorf("create events: %w", err)
		}

		if _, err := db.NewCreateTable().
			Model((*models.EventPhoto)(nil)).
			IfNotExists().
			ForeignKey(`("event_id") REFERENCES "events" ("id") ON DELETE CASCADE`).
			Exec(ctx); err != nil {
			return fmt.Errorf("create event_photos: %w", err)
		}

		if _, err := db.NewCreateTable().
			Model((*models.PromoOrder)(nil)).
			IfNotExists().
			ForeignKey(`("event_id") REFERENCES "events" ("id") ON DELETE CASCADE`).
			Exec(ctx); err != nil {
			return fmt.Errorf("create promo_orders: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []interface{}{
			(*models.PromoOrder)(nil),
			(*models.EventPhoto)(nil),
			(*models.Event)(nil),
			(*models.User)(nil),
		}
		for _, m := range tables {
			if _, err := db.NewDropTable().Model(m).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("drop %T: %w", m, err)
			}
		}
		return nil
	})
}
