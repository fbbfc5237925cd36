package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"eventsnow/internal/analytics"
	"eventsnow/internal/api"
	"eventsnow/internal/bot"
	"eventsnow/internal/config"
	"eventsnow/internal/database"
	"eventsnow/internal/database/migrations"
	"eventsnow/internal/events"
	eventsdb "eventsnow/internal/events/db"
	"eventsnow/internal/feed"
	"eventsnow/internal/kafka"
	"eventsnow/internal/logger"
	"eventsnow/internal/metrics"
	"eventsnow/internal/payment"
	"eventsnow/internal/payment/redislock"
	"eventsnow/internal/payment/stripepay"
	"eventsnow/internal/payment/yookassa"
	"eventsnow/internal/promotion"
)

// paymentStack is left zero when no provider is configured.
type paymentStack struct {
	Service *payment.Service
	Stripe  *stripepay.Provider
}

func newProvider(cfg config.PaymentConfig, log *logger.Logger) (payment.Provider, *stripepay.Provider) {
	switch cfg.Provider {
	case "stripe":
		p, err := stripepay.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		if err != nil {
			log.Warn("PAYMENT", fmt.Sprintf("Stripe disabled: %v", err))
			return nil, nil
		}
		log.Info("PAYMENT", "Using Stripe Checkout")
		return p, p
	case "yookassa":
		if cfg.YooKassaShopID == "" || cfg.YooKassaSecretKey == "" {
			log.Warn("PAYMENT", "YOOKASSA_SHOP_ID or YOOKASSA_SECRET_KEY not set, promotions are disabled")
			return nil, nil
		}
		log.Info("PAYMENT", "Using YooKassa")
		return yookassa.New(cfg.YooKassaShopID, cfg.YooKassaSecretKey, cfg.YooKassaBaseURL, cfg.Timeout), nil
	default:
		log.Warn("PAYMENT", fmt.Sprintf("Unknown PAYMENT_PROVIDER %q, promotions are disabled", cfg.Provider))
		return nil, nil
	}
}

func newLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) (payment.Locker, func()) {
	if cfg.Redis.Addr == "" {
		log.Info("REDIS", "REDIS_ADDR not set, using in-process payment locks")
		return payment.NewMemoryLocker(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis at %s unreachable (%v), using in-process payment locks", cfg.Redis.Addr, err))
		client.Close()
		return payment.NewMemoryLocker(), func() {}
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	return redislock.New(client, cfg.Payment.LockTTL), func() { client.Close() }
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting EventsNow")
	cfg := config.Load()
	if cfg.Bot.Token == "" {
		log.Fatal("CONFIG", "BOT_TOKEN not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()
	if err := migrations.EnsureSchema(ctx, bunDB, log); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Schema migration failed: %v", err))
	}
	metrics.Register()

	loc, err := time.LoadLocation(cfg.Feed.Timezone)
	if err != nil {
		log.Warn("CONFIG", fmt.Sprintf("Unknown FEED_TIMEZONE %q, using UTC", cfg.Feed.Timezone))
		loc = time.UTC
	}

	// --- Messaging ---
	var (
		publisher kafka.Publisher
		bus       *kafka.LocalBus
		producer  *kafka.Producer
	)
	topics := []string{cfg.Kafka.Topics.EventSubmitted, cfg.Kafka.Topics.EventModerated, cfg.Kafka.Topics.PromoPaid}
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		checkCtx, cancelCheck := context.WithTimeout(ctx, 10*time.Second)
		if missing, err := kafka.MissingTopics(checkCtx, cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Could not list topics: %v", err))
		} else if len(missing) > 0 {
			log.Warn("KAFKA", fmt.Sprintf("Topics still missing after setup: %v", missing))
		}
		cancelCheck()
		publisher = producer
	} else {
		bus = kafka.NewLocalBus(log)
		publisher = bus
		log.Info("KAFKA", "Kafka disabled, domain events are delivered in-process")
	}

	// --- Core ---
	store := eventsdb.New(bunDB)
	eventService := events.NewEventService(store, publisher, events.Topics{
		Submitted: cfg.Kafka.Topics.EventSubmitted,
		Moderated: cfg.Kafka.Topics.EventModerated,
	}, log)
	feedBuilder := feed.NewBuilder(store, loc, cfg.Feed.Limit, log)
	engine := promotion.NewEngine(store, publisher, cfg.Kafka.Topics.PromoPaid, log)
	stats := analytics.NewService(bunDB)

	// --- Payments ---
	locks, closeLocks := newLocker(ctx, cfg, log)
	defer closeLocks()

	var pay paymentStack
	provider, stripeProvider := newProvider(cfg.Payment, log)
	if provider != nil {
		pay.Service = payment.NewService(store, provider, engine, locks, log)
		pay.Service.Currency = cfg.Payment.Currency
		pay.Service.ReturnURL = cfg.Payment.ReturnURL
		pay.Service.Timeout = cfg.Payment.Timeout
		pay.Stripe = stripeProvider
	}

	var poller *payment.Poller
	if pay.Service != nil && cfg.Payment.PollSpec != "" {
		poller = payment.NewPoller(ctx, pay.Service, log)
		if _, err := poller.Schedule(cfg.Payment.PollSpec); err != nil {
			log.Fatal("PAYMENT", err.Error())
		}
		poller.Start()
		log.Info("PAYMENT", fmt.Sprintf("Payment poller scheduled: %s", cfg.Payment.PollSpec))
	}

	// --- Telegram ---
	tg, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.Fatal("BOT", fmt.Sprintf("Telegram login failed: %v", err))
	}
	tg.Debug = cfg.Bot.Debug
	log.Info("BOT", fmt.Sprintf("Authorized as @%s", tg.Self.UserName))

	deps := bot.Deps{Events: eventService, Feed: feedBuilder, Stats: stats}
	if pay.Service != nil {
		deps.Payments = pay.Service
	}
	b := bot.NewBot(tg, deps, cfg.Bot.AdminIDs, log)

	handlers := map[string]kafka.Handler{
		cfg.Kafka.Topics.EventSubmitted: b.OnSubmitted,
		cfg.Kafka.Topics.EventModerated: b.OnModerated,
		cfg.Kafka.Topics.PromoPaid:      b.OnPromoPaid,
	}
	if bus != nil {
		for topic, h := range handlers {
			bus.Subscribe(topic, h)
		}
	} else {
		for topic, h := range handlers {
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topic, "eventsnow-bot", log)
			defer consumer.Close()
			go func(consumer *kafka.Consumer, topic string, h kafka.Handler) {
				if err := consumer.Run(ctx, h); err != nil {
					log.Error("KAFKA", fmt.Sprintf("Consumer for %s stopped: %v", topic, err))
				}
			}(consumer, topic, h)
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := tg.GetUpdatesChan(u)
	go func() {
		if err := b.Run(ctx, updates); err != nil && err != context.Canceled {
			log.Error("BOT", fmt.Sprintf("Update loop stopped: %v", err))
		}
	}()

	// --- HTTP ---
	var (
		checker api.PaymentChecker
		hooks   api.StripeWebhooks
	)
	if pay.Service != nil {
		checker = pay.Service
	}
	if pay.Stripe != nil {
		hooks = pay.Stripe
	}
	r := chi.NewRouter()
	api.NewHandler(checker, hooks, bunDB, log).RegisterRoutes(r)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 HTTP server running on %s", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "EventsNow started, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	tg.StopReceivingUpdates()
	if poller != nil {
		poller.Stop()
	}
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ EventsNow shutdown complete")
	}
}
