package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/account-auth/internal/config"
	"github.com/iliyamo/account-auth/internal/database"
	"github.com/iliyamo/account-auth/internal/handler"
	"github.com/iliyamo/account-auth/internal/mail"
	"github.com/iliyamo/account-auth/internal/middleware"
	"github.com/iliyamo/account-auth/internal/queue"
	"github.com/iliyamo/account-auth/internal/repository"
	"github.com/iliyamo/account-auth/internal/router"
	"github.com/iliyamo/account-auth/internal/service"
	"github.com/iliyamo/account-auth/internal/utils"
)

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout)
	if cfg.Env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", "account-auth").Logger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("mysql unavailable")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	rdb := config.NewRedisClient()
	defer rdb.Close()
	if err := config.PingRedis(ctx, rdb); err != nil {
		log.Fatal().Err(err).Msg("redis unavailable")
	}

	renderer, err := mail.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("email templates")
	}
	smtpSender := mail.NewSMTPSender(cfg.SMTP, renderer, log)

	var sender mail.Sender = smtpSender
	if cfg.Email.Transport == "amqp" {
		sender = queue.NewPublisher(cfg.RabbitMQURL, log)
		consumer := queue.NewConsumer(cfg.RabbitMQURL, smtpSender, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("email consumer stopped")
			}
		}()
	}

	store := repository.NewStore(db, log)
	tracker := service.NewRedisVersionTracker(rdb, repository.NewUserRepo(db), log)
	limiter := service.NewEmailRateLimiter(rdb, cfg.Email.RateLimitMax, cfg.Email.RateLimitWindow)
	accounts := service.NewAccountService(store, tracker, limiter, sender, service.AppInfo{
		Name:         cfg.AppName,
		BaseURL:      cfg.BaseURL,
		SupportEmail: cfg.SupportEmail,
	}, log)

	issuer := utils.NewClaimsIssuer(cfg.JWTSecret, cfg.Session.TTL)
	cookie := middleware.CookieOptions{Name: cfg.Session.CookieName, Secure: cfg.Session.Secure}

	e := router.New(router.Deps{
		Auth:            handler.NewAuthHandler(accounts, issuer, cookie, log),
		Issuer:          issuer,
		Tracker:         tracker,
		Cookie:          cookie,
		Redis:           rdb,
		DB:              db,
		MinResponseTime: cfg.MinResponseTime,
		GlobalLimit:     config.LoadRateLimitConfig("global", 100, time.Minute),
		AuthLimit:       config.LoadRateLimitConfig("auth", 10, time.Minute),
		Log:             log,
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("email_transport", cfg.Email.Transport).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}
