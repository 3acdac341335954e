package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvcrn/notebook-gateway/internal/app"
	"github.com/dvcrn/notebook-gateway/internal/auth"
	"github.com/dvcrn/notebook-gateway/internal/config"
	"github.com/dvcrn/notebook-gateway/internal/credentials"
	"github.com/dvcrn/notebook-gateway/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default: $NOTEBOOK_GATEWAY_CONFIG or ./config.yaml)")
	saveToken := flag.String("save-token", "", "Store this token in the filesystem token file and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Env, cfg.Log.Level)

	if *saveToken != "" {
		path := cfg.Credentials.FSPath
		if path == "" {
			path = credentials.DefaultTokensPath()
		}
		if err := credentials.SaveToken(path, cfg.Credentials.Template, *saveToken); err != nil {
			log.Fatal().Err(err).Msg("Failed to save token")
		}
		log.Info().Str("path", path).Str("template", cfg.Credentials.Template).Msg("📄 Token saved")
		return
	}

	source, err := app.NewSource(cfg.Credentials)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create credential source")
	}
	log.Info().
		Str("source", cfg.Credentials.Source).
		Str("template", cfg.Credentials.Template).
		Str("storage_driver", cfg.Backend.StorageDriver).
		Msg("🔑 Using credential source with background refresh")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := app.New(cfg, source, log)
	validateCredentialsAtStartup(ctx, gw.Manager, log)
	gw.Manager.Start(ctx)
	defer gw.Manager.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           gw.Server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}
}

func validateCredentialsAtStartup(ctx context.Context, manager *auth.Manager, log zerolog.Logger) {
	if _, err := manager.GetClient(ctx); err != nil {
		log.Error().Err(err).Msg("⚠️  Failed to validate credentials at startup")
		return
	}

	st := manager.Status()
	log.Info().
		Str("subject", st.Subject).
		Str("token_preview", st.TokenPreview).
		Msg("✅ Credentials loaded successfully")

	if st.ExpiresAt == nil {
		log.Info().Msg("Token carries no expiry, refreshing on the fixed schedule")
		return
	}

	minutesUntilExpiry := int64(time.Until(*st.ExpiresAt) / time.Minute)
	if minutesUntilExpiry <= 0 {
		log.Warn().
			Int64("minutes_expired", -minutesUntilExpiry).
			Msg("⚠️  Token is already expired, will attempt refresh on first request")
	} else if minutesUntilExpiry <= 5 {
		log.Warn().
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("⚠️  Token expires soon, will refresh shortly")
	} else {
		log.Info().
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("✅ Token is valid and not expiring soon")
	}
}
