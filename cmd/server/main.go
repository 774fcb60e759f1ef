package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/auction-marketplace/internal/auction"
	"github.com/iliyamo/auction-marketplace/internal/clock"
	"github.com/iliyamo/auction-marketplace/internal/config"
	"github.com/iliyamo/auction-marketplace/internal/database"
	"github.com/iliyamo/auction-marketplace/internal/handler"
	"github.com/iliyamo/auction-marketplace/internal/logging"
	"github.com/iliyamo/auction-marketplace/internal/middleware"
	"github.com/iliyamo/auction-marketplace/internal/payment"
	"github.com/iliyamo/auction-marketplace/internal/queue"
	"github.com/iliyamo/auction-marketplace/internal/repository"
	"github.com/iliyamo/auction-marketplace/internal/router"
	"github.com/iliyamo/auction-marketplace/internal/service"
)

func main() {
	token := flag.String("token", "", "print a dev access token for this principal and exit")
	flag.Parse()

	cfg := config.Load() // Load environment config
	logger := logging.Setup(cfg.LogLevel, cfg.Env)

	if *token != "" {
		tok, err := devToken(cfg, *token)
		if err != nil {
			logger.Fatal().Err(err).Msg("issue token")
		}
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	auctionCfg := config.LoadAuctionConfig()
	eventsCfg := config.LoadEventsConfig()
	bidLimitCfg := config.LoadBidRateLimitConfig()

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Warn().Msg("redis unreachable; bid rate limiting disabled")
	}

	store, ready, closeStore, err := openStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, runPublisher, closePublisher, err := openPublisher(eventsCfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	svc := auction.New(store, auction.Options{
		Clock: clock.System{},
		Retry: auction.RetryPolicy{
			MaxAttempts:  auctionCfg.MaxAttempts,
			InitialDelay: auctionCfg.RetryBackoff,
			MaxDelay:     auctionCfg.RetryMaxBackoff,
		},
		Publisher: publisher,
		Logger:    &logger,
	})

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(logging.RequestLogger(logger))

	var limiter echo.MiddlewareFunc
	if rdb != nil {
		limiter = middleware.NewBidLimiter(bidLimitCfg, rdb)
	}
	router.RegisterRoutes(e, ready)
	router.RegisterAuctions(e, handler.NewAuctionHandler(svc, payment.NewLocalGateway(cfg.Currency)), cfg.JWTSecret, limiter)

	g, gctx := errgroup.WithContext(ctx)

	addr := ":" + cfg.Port
	g.Go(func() error {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.Store).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return svc.Supervisor.Run(gctx, auctionCfg.SweepInterval, auctionCfg.SweepBatch)
	})
	if runPublisher != nil {
		g.Go(func() error { return runPublisher(gctx) })
	}
	if eventsCfg.ConsumerEnabled {
		g.Go(func() error {
			err := queue.StartAuctionEventConsumer(gctx, eventsCfg.AMQPURL, eventsCfg.LogDir)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// openStore builds the record store selected by STORE_BACKEND together with
// its readiness check and cleanup.
func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client) (repository.AuctionStore, func(context.Context) error, func(), error) {
	switch cfg.Store {
	case config.BackendMySQL, config.BackendSQLite:
		var (
			db      *sql.DB
			err     error
			dialect = database.DialectMySQL
		)
		if cfg.Store == config.BackendMySQL {
			db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		} else {
			dialect = database.DialectSQLite
			db, err = database.OpenSQLite(cfg.SQLitePath)
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open %s: %w", cfg.Store, err)
		}
		if err := database.Migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return repository.NewSQLStore(db, clock.System{}), db.PingContext, func() { _ = db.Close() }, nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, nil, nil, errors.New("STORE_BACKEND=redis but redis is unreachable")
		}
		ready := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return repository.NewRedisStore(rdb, cfg.RedisPrefix, clock.System{}), ready, func() {}, nil
	default:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(clock.System{}), nil, func() {}, nil
	}
}

// openPublisher returns the event publisher, the delivery loop it needs
// (nil when it has none) and its cleanup.
func openPublisher(cfg config.EventsConfig) (auction.EventPublisher, func(context.Context) error, func(), error) {
	switch cfg.Backend {
	case config.EventsRabbitMQ:
		p := service.NewRabbitPublisher(cfg.AMQPURL, cfg.Buffer)
		return p, p.Run, func() {}, nil
	case config.EventsNATS:
		nc, err := service.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		return service.NewNATSPublisher(nc), nil, func() { _ = nc.Drain() }, nil
	default:
		return nil, nil, func() {}, nil
	}
}
