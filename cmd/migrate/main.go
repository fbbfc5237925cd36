package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"eventsnow/internal/config"
	"eventsnow/internal/database"
	"eventsnow/internal/database/migrations"
	eventsdb "eventsnow/internal/events/db"
	"eventsnow/internal/logger"
	"eventsnow/internal/models"
)

const demoOrganizer = int64(100000001)

func main() {
	seed := flag.Bool("seed", false, "insert demo events after migrating")
	rollback := flag.Bool("rollback", false, "roll back the last migration group and exit")
	status := flag.Bool("status", false, "print applied/pending migration counts and exit")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	runner := migrations.NewRunner(db, log)
	if err := runner.Initialize(ctx); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	switch {
	case *status:
		applied, pending, err := runner.Status(ctx)
		if err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		log.Info("MIGRATE", fmt.Sprintf("applied=%d pending=%d", applied, pending))
		return
	case *rollback:
		if err := runner.Rollback(ctx); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		return
	}

	if err := runner.RunMigrations(ctx); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	if *seed {
		n, err := seedData(ctx, db, time.Now())
		if err != nil {
			log.Fatal("SEED", err.Error())
		}
		log.Info("SEED", fmt.Sprintf("✅ Inserted %d demo events", n))
	}
	log.Info("MIGRATE", "✅ Done.")
}

// seedData adds a handful of approved events spread over the coming month,
// one of each format, with one promoted to the top.
func seedData(ctx context.Context, db *bun.DB, now time.Time) (int, error) {
	store := eventsdb.New(db)
	date := func(days int) string { return now.AddDate(0, 0, days).Format("02.01.2006") }

	demo := []models.NewEvent{
		{
			Category: "🎵 Концерт", Title: "Джаз на крыше", Description: "Вечер живого джаза с видом на город.",
			Format: models.FormatSingle, EventDate: date(2), EventTime: "20:00",
			Location: "ул. Ленина, 1, крыша", PriceText: "800 ₽", TicketLink: "https://example.com/jazz",
		},
		{
			Category: "🖼 Выставка", Title: "Город в фотографиях", Description: "Сто лет истории улиц в архивных снимках.",
			Format: models.FormatPeriod, StartDate: date(0), EndDate: date(30), OpenTime: "10:00", CloseTime: "19:00",
			Location: "Городской музей", PriceText: "Бесплатно",
		},
		{
			Category: "🎭 Спектакль", Title: "Ревизор", Description: "Классика в постановке молодёжного театра.",
			Format: models.FormatSessions, SessionsStartDate: date(5), SessionsEndDate: date(7), SessionsTimes: "15:00, 19:00",
			Location: "Драмтеатр", PriceText: "от 500 ₽", Phone: "+7 900 000-00-00",
		},
		{
			Category: "📌 Другое", CategoryText: "Квиз", Title: "Квиз в библиотеке", Description: "Командная игра на эрудицию.",
			Format: models.FormatSingle, EventDate: date(1), EventTime: "18:30",
			Location: "Центральная библиотека", PriceText: "300 ₽ с человека",
		},
	}

	ids := make([]int64, 0, len(demo))
	for _, ev := range demo {
		ev.OrganizerID = demoOrganizer
		id, err := store.CreateEvent(ctx, ev)
		if err != nil {
			return len(ids), fmt.Errorf("seed %q: %w", ev.Title, err)
		}
		if _, err := store.ApproveEvent(ctx, id); err != nil {
			return len(ids), err
		}
		ids = append(ids, id)
	}

	until := now.AddDate(0, 0, 7).UTC()
	if _, err := store.SetEventPromoted(ctx, ids[0], models.PromoTop, &until); err != nil {
		return len(ids), err
	}
	return len(ids), nil
}
