//go:build js && wasm

package main

import (
	"github.com/dvcrn/notebook-gateway/internal/app"
	"github.com/dvcrn/notebook-gateway/internal/config"
	"github.com/dvcrn/notebook-gateway/internal/credentials"
	"github.com/dvcrn/notebook-gateway/internal/logger"
	"github.com/syumai/workers"
	"github.com/syumai/workers/cloudflare"
)

func main() {
	cfg, err := config.LoadWithLookup(cloudflare.Getenv)
	if err != nil {
		log := logger.New("production", "info")
		log.Fatal().Err(err).Msg("Failed to load config from Worker environment")
	}
	log := logger.New(cfg.Log.Env, cfg.Log.Level)

	var source credentials.Source
	if cfg.Credentials.Source == "kv" {
		log.Info().Msg("📦 Using Cloudflare KV credential source")
		kvSource, err := credentials.NewCloudflareKVSource()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Cloudflare KV source")
		}
		source = kvSource
	} else {
		source, err = app.NewSource(cfg.Credentials)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create credential source")
		}
	}

	// No background refresh loop here: Workers do not keep goroutines alive
	// between requests, so the manager refreshes on demand.
	gw := app.New(cfg, source, log)
	workers.Serve(gw.Server)
}
