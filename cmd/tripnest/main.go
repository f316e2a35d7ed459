package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tripnest/internal/app/commands"
	availabilityapp "tripnest/internal/app/handlers/availability"
	bookingapp "tripnest/internal/app/handlers/booking"
	meapp "tripnest/internal/app/handlers/me"
	paymentsapp "tripnest/internal/app/handlers/payments"
	"tripnest/internal/app/middleware"
	"tripnest/internal/app/outbox"
	"tripnest/internal/app/policies"
	"tripnest/internal/app/queries"
	authsvc "tripnest/internal/app/services/auth"
	"tripnest/internal/app/uow"
	"tripnest/internal/domain/listings"
	"tripnest/internal/infra/broker/kafka"
	"tripnest/internal/infra/config"
	"tripnest/internal/infra/db/postgres"
	ginserver "tripnest/internal/infra/http/gin"
	"tripnest/internal/infra/obs"
	infraoutbox "tripnest/internal/infra/outbox"
	infrapayments "tripnest/internal/infra/payments"
	"tripnest/internal/infra/security"
	"tripnest/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Error("application wiring failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	if cfg.StorageMode == "memory" {
		fixturesPath := getenv("LISTINGS_FIXTURES", defaultListingFixturesPath())
		if err := app.loadListingFixtures(ctx, fixturesPath, logger); err != nil {
			logger.Warn("listing fixtures load failed", "error", err, "path", fixturesPath)
		}
	}

	if app.outboxWorker != nil {
		go func() {
			if err := app.outboxWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}
	if app.paymentConsumer != nil {
		go func() {
			if err := app.paymentConsumer.Run(ctx, app.paymentTopics); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("payment event consumer stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers        ginserver.Handlers
	uowFactory      uow.UoWFactory
	outboxWorker    *infraoutbox.Worker
	paymentConsumer *kafka.Consumer
	paymentTopics   []string
	ready           func() error
	closers         []func() error
}

func buildApplication(cfg config.Config, logger *slog.Logger) (application, error) {
	app := application{ready: func() error { return nil }}

	var (
		factory uow.UoWFactory
		box     outbox.Outbox
		relay   infraoutbox.Store
		idStore middleware.IdempotencyStore
	)

	authService := &authsvc.Service{
		Sessions:   memory.NewSessionStore(),
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	switch cfg.StorageMode {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return application{}, fmt.Errorf("postgres: %w", err)
		}
		app.closers = append(app.closers, func() error { return postgres.Close(db) })
		app.ready = func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		}
		factory = postgres.Factory{DB: db}
		store := &postgres.OutboxStore{DB: db}
		box = store
		relay = store
		idStore = &postgres.IdempotencyStore{DB: db, TTL: cfg.IdempotencyTTL}
		authService.Users = postgres.NewUserRepository(db)
	case "memory":
		memFactory := memory.NewFactory()
		factory = memFactory
		memBox := memory.NewOutbox()
		box = memBox
		relay = memBox
		idStore = memory.NewIdempotencyStore()
		authService.Users = memFactory.UsersRepo
	default:
		return application{}, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
	}
	app.uowFactory = factory

	provider := infrapayments.NewSandboxProvider()
	notifier := policies.NopNotifier{}
	encoder := outbox.JSONEventEncoder{}

	commandBus := commands.NewInMemoryBus()
	requestHandler := &bookingapp.RequestBookingHandler{
		UoWFactory: factory,
		Pricing:    policies.StandardPricing{},
		Payments:   provider,
		Outbox:     box,
		Encoder:    encoder,
	}
	commands.RegisterHandler(commandBus, bookingapp.RequestBookingCommand{}.Key(), requestHandler)

	lifecycle := &bookingapp.LifecycleHandler{
		UoWFactory: factory,
		Payments:   provider,
		Notifier:   notifier,
		Outbox:     box,
		Encoder:    encoder,
		Logger:     logger,
	}
	commands.RegisterHandler(commandBus, bookingapp.ApproveBookingCommand{}.Key(),
		commands.HandlerFunc[bookingapp.ApproveBookingCommand, *bookingapp.LifecycleResult](lifecycle.HandleApprove))
	commands.RegisterHandler(commandBus, bookingapp.RejectBookingCommand{}.Key(),
		commands.HandlerFunc[bookingapp.RejectBookingCommand, *bookingapp.LifecycleResult](lifecycle.HandleReject))
	commands.RegisterHandler(commandBus, bookingapp.CancelBookingCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CancelBookingCommand, *bookingapp.LifecycleResult](lifecycle.HandleCancel))
	commands.RegisterHandler(commandBus, bookingapp.CheckInCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CheckInCommand, *bookingapp.LifecycleResult](lifecycle.HandleCheckIn))
	commands.RegisterHandler(commandBus, bookingapp.CheckOutCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CheckOutCommand, *bookingapp.LifecycleResult](lifecycle.HandleCheckOut))
	commands.RegisterHandler(commandBus, bookingapp.CompleteBookingCommand{}.Key(),
		commands.HandlerFunc[bookingapp.CompleteBookingCommand, *bookingapp.LifecycleResult](lifecycle.HandleComplete))

	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Idempotency(idStore, nil),
		middleware.Transaction(factory, nil),
		middleware.OutboxFlush(box),
	)

	// Webhook processing owns its transaction boundaries (the event ledger
	// insert must commit before the business mutation), so it rides a bus
	// without the transaction middleware.
	webhookBus := commands.NewInMemoryBus()
	processHandler := &paymentsapp.ProcessEventHandler{
		UoWFactory: factory,
		Notifier:   notifier,
		Outbox:     box,
		Encoder:    encoder,
		Logger:     logger,
	}
	commands.RegisterHandler(webhookBus, paymentsapp.ProcessPaymentEventCommand{}.Key(), processHandler)
	processBus := middleware.ChainCommands(webhookBus)

	eraseHandler := &meapp.EraseAccountHandler{
		UoWFactory: factory,
		Sessions:   authService.Sessions,
		Logger:     logger,
	}
	commands.RegisterHandler(commandBus, meapp.EraseAccountCommand{}.Key(), eraseHandler)

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, bookingapp.GetBookingQuery{}.Key(),
		&bookingapp.GetBookingHandler{UoWFactory: factory})
	queries.RegisterHandler(queryBus, availabilityapp.CheckAvailabilityQuery{}.Key(),
		&availabilityapp.CheckAvailabilityHandler{UoWFactory: factory})
	queries.RegisterHandler(queryBus, meapp.ListGuestBookingsQuery{}.Key(),
		&meapp.ListGuestBookingsHandler{UoWFactory: factory, Logger: logger})
	queryBusWithMiddleware := middleware.ChainQueries(queryBus)

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return application{}, fmt.Errorf("kafka: %w", err)
		}
		app.closers = append(app.closers, producer.Close)
		app.outboxWorker = &infraoutbox.Worker{
			Store:       relay,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
		}
		if cfg.PaymentEventsTopic != "" {
			consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, "tripnest-payment-events",
				&infrapayments.EventConsumer{Commands: processBus, Logger: logger}, logger)
			if err != nil {
				return application{}, fmt.Errorf("kafka consumer: %w", err)
			}
			app.closers = append(app.closers, consumer.Close)
			app.paymentConsumer = consumer
			app.paymentTopics = []string{cfg.PaymentEventsTopic}
		}
	}

	app.handlers = ginserver.Handlers{
		Booking: ginserver.BookingHandler{
			Commands: commandBusWithMiddleware,
			Queries:  queryBusWithMiddleware,
		},
		Availability: ginserver.AvailabilityHandler{
			Queries: queryBusWithMiddleware,
		},
		Webhook: ginserver.WebhookHandler{
			Commands: processBus,
			Verifier: infrapayments.SignatureVerifier{
				Secret:    []byte(cfg.WebhookSecret),
				Tolerance: cfg.WebhookTolerance,
			},
			Logger: logger,
		},
		Auth: ginserver.AuthHandler{Service: authService, Logger: logger},
		Me: ginserver.MeHandler{
			Commands: commandBusWithMiddleware,
			Queries:  queryBusWithMiddleware,
			Logger:   logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{
			Service: authService,
			Logger:  logger,
		}.Handle,
	}
	return app, nil
}

func (a application) close(logger *slog.Logger) {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			logger.Warn("shutdown cleanup failed", "error", err)
		}
	}
}

func (a application) loadListingFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	if len(fixtures) == 0 {
		return nil
	}

	unit, err := a.uowFactory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(ctx)
		}
	}()

	now := time.Now()
	for _, fx := range fixtures {
		listing, err := listings.NewListing(listings.CreateListingParams{
			ID:          listings.ListingID(fx.ID),
			Host:        listings.HostID(fx.Host),
			Title:       fx.Title,
			Description: fx.Description,
			Address: listings.Address{
				Line1:   fx.Address.Line1,
				Line2:   fx.Address.Line2,
				City:    fx.Address.City,
				Country: fx.Address.Country,
			},
			GuestsLimit:          fx.GuestsLimit,
			MinNights:            fx.MinNights,
			MaxNights:            fx.MaxNights,
			CancellationPolicyID: fx.CancellationPolicyID,
			InstantBook:          fx.InstantBook,
			Currency:             fx.Currency,
			NightlyRateCents:     fx.NightlyRateCents,
			CleaningFeeCents:     fx.CleaningFeeCents,
			ServiceFeeCents:      fx.ServiceFeeCents,
			Now:                  now,
		})
		if err != nil {
			logger.Error("fixture invalid", "listing_id", fx.ID, "error", err)
			continue
		}
		if err := listing.Activate(now); err != nil {
			logger.Error("fixture activation failed", "listing_id", fx.ID, "error", err)
			continue
		}
		if err := unit.Listings().Save(ctx, listing); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", fx.ID, "error", err)
			continue
		}
		logger.Info("listing fixture imported", "listing_id", listing.ID)
	}
	if err := unit.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

type listingFixture struct {
	ID                   string         `json:"id"`
	Host                 string         `json:"host"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	Address              fixtureAddress `json:"address"`
	GuestsLimit          int            `json:"guests_limit"`
	MinNights            int            `json:"min_nights"`
	MaxNights            int            `json:"max_nights"`
	CancellationPolicyID string         `json:"cancellation_policy_id"`
	InstantBook          bool           `json:"instant_book"`
	Currency             string         `json:"currency"`
	NightlyRateCents     int64          `json:"nightly_rate_cents"`
	CleaningFeeCents     int64          `json:"cleaning_fee_cents"`
	ServiceFeeCents      int64          `json:"service_fee_cents"`
}

type fixtureAddress struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
	City    string `json:"city"`
	Country string `json:"country"`
}

func defaultListingFixturesPath() string {
	return filepath.Join("data", "listings.json")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
