package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JohnHCunningham/housing-website/internal/config"
	"github.com/JohnHCunningham/housing-website/internal/httpserver"
	"github.com/JohnHCunningham/housing-website/internal/knowledge"
	"github.com/JohnHCunningham/housing-website/internal/llm"
	"github.com/JohnHCunningham/housing-website/internal/logger"
	"github.com/JohnHCunningham/housing-website/internal/proxy"
	"github.com/JohnHCunningham/housing-website/internal/realtime"
	"github.com/JohnHCunningham/housing-website/internal/transcript"
	"github.com/JohnHCunningham/housing-website/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	lg := logger.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the system context loads in the background; sessions wait on it up to CONTEXT_WAIT
	sysctx := knowledge.NewContext()
	source, err := knowledgeSource(cfg, lg)
	if err != nil {
		lg.Error().Err(err).Msg("knowledge source unavailable, using fallback context")
		sysctx.Set(knowledge.Fallback)
	} else {
		loader := knowledge.NewLoader(source, nil, lg.With().Str("component", "knowledge").Logger())
		go loader.LoadInto(ctx, sysctx)
	}

	assistant := llm.NewClient(llm.Options{
		ProxyURL:    cfg.AgentProxyURL,
		APIKey:      cfg.AgentAPIKey,
		UpstreamURL: cfg.LLMUpstreamURL,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
	})
	lg.Info().Str("mode", string(assistant.Mode())).Msg("assistant client ready")

	speech, err := tts.NewProvider(tts.ProviderOptions{
		Name:              cfg.TTSProvider,
		DeepgramKey:       cfg.DeepgramKey,
		DeepgramModel:     cfg.DeepgramModel,
		ElevenLabsKey:     cfg.ElevenLabsKey,
		ElevenLabsVoiceID: cfg.ElevenLabsVoiceID,
		Logger:            lg.With().Str("component", "tts").Logger(),
	})
	if err != nil {
		lg.Fatal().Err(err).Msg("speech provider")
	}

	voiceOpts := realtime.Options{
		Assistant:      assistant,
		Context:        sysctx,
		ContextWait:    cfg.ContextWait,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         lg.With().Str("component", "voice").Logger(),
	}
	if speech != nil {
		voiceOpts.Speech = speech
	}
	if cfg.AssemblyAIKey != "" {
		voiceOpts.NewRecognizer = func() realtime.PCMRecognizer {
			return transcript.New(transcript.Options{
				APIKey: cfg.AssemblyAIKey,
				Logger: lg.With().Str("component", "transcript").Logger(),
			})
		}
	}

	srv := httpserver.New(cfg, httpserver.Handlers{
		Chat:  proxy.NewHandler(llm.NewUpstream(cfg.LLMUpstreamURL, cfg.ClaudeAPIKey, cfg.LLMModel, cfg.LLMMaxTokens), lg),
		Voice: realtime.NewHandler(voiceOpts),
	}, lg)

	if err := srv.Run(ctx); err != nil {
		lg.Fatal().Err(err).Msg("server error")
	}
}

func knowledgeSource(cfg config.Config, lg zerolog.Logger) (knowledge.Source, error) {
	if cfg.UseSupabase() {
		lg.Info().Str("bucket", cfg.SupabaseBucket).Msg("loading knowledge from supabase storage")
		src, err := knowledge.NewSupabaseSource(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket, cfg.SupabasePrefix)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	lg.Info().Str("base_url", cfg.KnowledgeBaseURL).Msg("loading knowledge over http")
	return knowledge.NewHTTPSource(cfg.KnowledgeBaseURL), nil
}
