package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"orderdesk/config"
	"orderdesk/customer"
	"orderdesk/database"
	"orderdesk/loader"
	"orderdesk/logging"
	"orderdesk/notify"
	"orderdesk/order"
	"orderdesk/ordering"
	"orderdesk/receipt"
	"orderdesk/stock"
	"orderdesk/units"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("WARN: failed to load config file: %v. Using defaults.", err)
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("orderdesk stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting to database", zap.String("path", cfg.DatabasePath))
	db, err := database.Open(cfg.DatabasePath, cfg.BusyTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.UnitsCSVPath != "" {
		if _, err := units.LoadUnitsFile(cfg.UnitsCSVPath); err != nil {
			logger.Warn("unit aliases not loaded, using built-in aliases", zap.Error(err))
		} else {
			logger.Info("unit aliases loaded", zap.String("path", cfg.UnitsCSVPath))
		}
	}

	clock := time.Now
	receipts, err := receipt.NewAllocator(receipt.Deps{DB: db, Clock: clock, Logger: logger})
	if err != nil {
		return err
	}
	engine, err := stock.NewEngine(stock.Deps{DB: db, Clock: clock, Logger: logger})
	if err != nil {
		return err
	}
	if err := loader.InitDatabase(ctx, db, receipts, engine, cfg, logger); err != nil {
		return err
	}

	customers, err := customer.NewLedger(customer.Deps{
		DB:          db,
		Clock:       clock,
		Logger:      logger,
		CountryCode: cfg.CountryCode,
		NameLocale:  cfg.NameLocale,
	})
	if err != nil {
		return err
	}
	orders, err := order.NewWriter(order.Deps{
		DB:            db,
		Receipts:      receipts,
		Clock:         clock,
		Logger:        logger,
		MaxNoteLength: cfg.MaxNoteLength,
	})
	if err != nil {
		return err
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.AMQP.URL != "" {
		p, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Warn("order events disabled, broker unreachable", zap.Error(err))
		} else {
			publisher = p
			logger.Info("publishing order events", zap.String("exchange", cfg.AMQP.Exchange))
		}
	}
	defer publisher.Close()

	svc, err := ordering.NewService(ordering.Deps{
		DB:                   db,
		Customers:            customers,
		Orders:               orders,
		Stock:                engine,
		Receipts:             receipts,
		Publisher:            publisher,
		Clock:                clock,
		Logger:               logger,
		PickupDiscount:       cfg.PickupDiscount,
		AtomicCustomerUpsert: cfg.AtomicCustomerUpsert,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: SetupRoutes(&app{
			db:        db,
			customers: customers,
			orders:    orders,
			stock:     engine,
			ordering:  svc,
			clock:     clock,
			logger:    logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
