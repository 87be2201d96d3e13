package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipforge/scenekit/internal/api"
	"github.com/clipforge/scenekit/internal/auth"
	"github.com/clipforge/scenekit/internal/config"
	"github.com/clipforge/scenekit/internal/db"
	"github.com/clipforge/scenekit/internal/jobengine"
	"github.com/clipforge/scenekit/internal/llm"
	"github.com/clipforge/scenekit/internal/mailer"
	"github.com/clipforge/scenekit/internal/media"
	"github.com/clipforge/scenekit/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Info().Msg("starting scenekit server")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	secret, generated, err := auth.EnsureSecret(cfg.AuthSecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to establish auth secret")
	}
	if generated {
		log.Warn().Msg("AUTH_SECRET_KEY not set; generated an ephemeral one for this process — sessions will not survive a restart")
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()
	log.Info().Msg("connected to database")

	if err := database.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	layout, err := storage.New(cfg.ProjectsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage layout")
	}
	storage.CleanStaleTempFiles(cfg.ProjectsDir)

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for now := range ticker.C {
			if _, err := database.SweepExpiredRateLimitCounters(context.Background(), now); err != nil {
				log.Warn().Err(err).Msg("rate-limit sweep failed")
			}
		}
	}()

	var wake *jobengine.WakeQueue
	if cfg.RedisURL != "" {
		wake, err = jobengine.NewWakeQueue(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer wake.Close()
		log.Info().Msg("connected to redis wake queue")
	}

	toolkit := media.NewToolkit()
	textChat := llm.NewOpenAIText(cfg.OpenAIKey, "gpt-4o")
	imageChat := llm.NewGeminiImage(cfg.GeminiKey, "gemini-1.5-flash")

	engine := jobengine.New(database, layout, toolkit, textChat, imageChat, wake, cfg)

	mail := &mailer.SMTPSender{
		Host:         cfg.SMTPHost,
		Port:         cfg.SMTPPort,
		User:         cfg.SMTPUser,
		Password:     cfg.SMTPPassword,
		From:         cfg.SMTPFrom,
		FromName:     cfg.SMTPFromName,
		UseSSL:       cfg.SMTPUseSSL,
		DevPrintCode: cfg.AuthDevPrintCode,
	}

	handler := api.NewHandler(database, layout, toolkit, engine, wake, cfg, mail, secret)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	var workerCancel context.CancelFunc
	if !cfg.DisableWorker {
		log.Info().Msg("job engine enabled, starting worker pool")
		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go engine.Start(workerCtx, 4)
	} else {
		log.Warn().Msg("job engine disabled via DISABLE_WORKER — async jobs will never be picked up")
	}

	go func() {
		log.Info().Str("port", cfg.APIPort).Msg("api server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	if workerCancel != nil {
		workerCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
