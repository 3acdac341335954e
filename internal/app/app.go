package app

import (
	"fmt"

	"github.com/dvcrn/notebook-gateway/internal/auth"
	"github.com/dvcrn/notebook-gateway/internal/backend"
	"github.com/dvcrn/notebook-gateway/internal/config"
	"github.com/dvcrn/notebook-gateway/internal/credentials"
	"github.com/dvcrn/notebook-gateway/internal/server"
	"github.com/dvcrn/notebook-gateway/internal/service"
	"github.com/rs/zerolog"
)

// App is the wired gateway shared by the native and the Worker binaries.
type App struct {
	Manager *auth.Manager
	Server  *server.Server
}

// New wires the credential manager, the services and the HTTP server.
func New(cfg *config.Config, source credentials.Source, logger zerolog.Logger) *App {
	httpClient := backend.NewHTTPClient(cfg.Backend.RequestTimeout)
	factory := backend.NewFactory(BackendConfig(cfg), httpClient, logger)

	manager := auth.NewManager(source, factory,
		auth.WithLogger(logger),
		auth.WithTemplate(cfg.Credentials.Template),
		auth.WithTimings(cfg.Auth.CacheWindow, cfg.Auth.RefreshInterval, cfg.Auth.RefreshMargin),
	)

	files := service.NewFiles(manager, service.FilesOptions{
		AllowedMIMETypes: cfg.Files.AllowedMIMETypes,
		MaxSize:          cfg.Files.MaxSize,
		MaxRetries:       cfg.Retry.Files,
	}, logger)
	notes := service.NewNotes(manager, cfg.Retry.Reads, logger)
	chat := service.NewChat(manager, service.ChatOptions{
		MaxRetries:     cfg.Retry.Chat,
		PersistRetries: cfg.Retry.Reads,
	}, logger)

	srv := server.New(logger, server.Services{
		Chat:        chat,
		Files:       files,
		Notes:       notes,
		Credentials: manager,
	}, server.Options{
		AdminAPIKey:   cfg.Server.AdminAPIKey,
		MaxUploadSize: cfg.Files.MaxSize,
	})

	return &App{Manager: manager, Server: srv}
}

// BackendConfig extracts the backend settings from cfg.
func BackendConfig(cfg *config.Config) backend.Config {
	return backend.Config{
		URL:           cfg.Backend.URL,
		AnonKey:       cfg.Backend.AnonKey,
		Bucket:        cfg.Backend.Bucket,
		StorageDriver: cfg.Backend.StorageDriver,
		S3Endpoint:    cfg.Backend.S3Endpoint,
		S3Region:      cfg.Backend.S3Region,
		ProjectRef:    cfg.Backend.ProjectRef,
		NotesTable:    cfg.Backend.NotesTable,
		MessagesTable: cfg.Backend.MessagesTable,
		ChatURL:       cfg.Chat.URL,
	}
}

// NewSource builds the credential source selected by cfg.Source. The "kv"
// source only exists in the Worker build and is created there.
func NewSource(cfg config.CredentialsConfig) (credentials.Source, error) {
	switch cfg.Source {
	case "env":
		return credentials.NewEnvSource(), nil
	case "fs":
		path := cfg.FSPath
		if path == "" {
			path = credentials.DefaultTokensPath()
		}
		return credentials.NewFSSource(path), nil
	case "template":
		return credentials.NewTemplateSource(cfg.BaseURL, cfg.SessionID, cfg.SessionSecret, nil), nil
	case "keychain":
		return credentials.NewKeychainSource(cfg.KeychainService), nil
	}
	return nil, fmt.Errorf("credential source %q is not available in this build", cfg.Source)
}
