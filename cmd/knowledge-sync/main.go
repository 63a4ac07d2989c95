package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/JohnHCunningham/housing-website/internal/config"
	"github.com/JohnHCunningham/housing-website/internal/knowledge"
	"github.com/JohnHCunningham/housing-website/internal/logger"
)

// knowledge-sync publishes the documents in KNOWLEDGE_DIR to Supabase Storage.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	lg := logger.New(cfg.ServiceName+"-sync", cfg.LogLevel)
	if !cfg.UseSupabase() {
		lg.Fatal().Msg("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := knowledge.NewPublisher(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket, cfg.SupabasePrefix, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("supabase")
	}
	n, err := pub.Publish(ctx, cfg.KnowledgeDir, nil)
	if err != nil {
		lg.Error().Err(err).Int("published", n).Msg("knowledge sync incomplete")
		os.Exit(1)
	}
	lg.Info().Int("published", n).Str("bucket", cfg.SupabaseBucket).Msg("knowledge sync complete")
}
