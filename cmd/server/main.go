package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/restaurant-reservations/internal/config"
	"github.com/iliyamo/restaurant-reservations/internal/dashboard"
	"github.com/iliyamo/restaurant-reservations/internal/database"
	"github.com/iliyamo/restaurant-reservations/internal/feed"
	"github.com/iliyamo/restaurant-reservations/internal/handler"
	"github.com/iliyamo/restaurant-reservations/internal/middleware"
	"github.com/iliyamo/restaurant-reservations/internal/queue"
	"github.com/iliyamo/restaurant-reservations/internal/repository"
	"github.com/iliyamo/restaurant-reservations/internal/router"
	"github.com/iliyamo/restaurant-reservations/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stdout)
	log := logger.WithField("env", cfg.Env)

	loc, err := cfg.Location()
	if err != nil {
		log.WithError(err).Fatal("restaurant timezone")
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.RunMigrations(db); err != nil {
			log.WithError(err).Fatal("run migrations")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient(cfg.Redis)
	var changes feed.Feed
	if rdb != nil {
		defer rdb.Close()
		changes = feed.NewRedisFeed(rdb, cfg.Feed.Prefix, log)
		log.Info("change feed on redis pub/sub")
	} else {
		changes = feed.NewHub(log)
		log.Warn("redis unreachable: change feed is in-process, rate limit and cache disabled")
	}

	var pub service.TransitionPublisher
	if cfg.Rabbit.Enabled {
		pub = service.NewRabbitPublisher(cfg.Rabbit.URL, cfg.Rabbit.Queue)
	}
	if cfg.Rabbit.Consume {
		consumer := &queue.TransitionLogConsumer{
			URL:     cfg.Rabbit.URL,
			Queue:   cfg.Rabbit.Queue,
			LogPath: cfg.Rabbit.ConsumerLog,
			Log:     log,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("transition consumer stopped")
			}
		}()
	}

	store := service.NewReservationService(repository.NewReservationRepo(db, loc), changes, pub, log)
	sessions := dashboard.NewRegistry()

	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb, log)
	cache := middleware.NewRedisCache(cfg.Cache, rdb, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover(), echomw.RequestID(), middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, handler.NewReservationHandler(store, log), limiter, cache)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg.Auth,
		repository.NewUserRepo(db), repository.NewTokenRepo(db), log), cfg.Auth.JWTSecret, limiter)
	router.RegisterStaff(e, handler.NewStaffHandler(store, loc, log), &handler.DashboardHandler{
		Store:        store,
		Feed:         changes,
		Sessions:     sessions,
		Secret:       cfg.Auth.JWTSecret,
		Loc:          loc,
		Log:          log,
		Heartbeat:    cfg.Feed.Heartbeat,
		NoticeBuffer: cfg.Feed.NoticeBuffer,
		BackoffMin:   cfg.Feed.BackoffMin,
		BackoffMax:   cfg.Feed.BackoffMax,
	}, cfg.Auth.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.WithField("addr", addr).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sessions.DisposeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}
