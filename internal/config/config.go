package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string   `env:"HTTP_ADDRESS" envDefault:":8080"`
	ServiceName string   `env:"SERVICE_NAME" envDefault:"voice-agent"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	// Proxy endpoint: the server-held credential never leaves this process.
	ClaudeAPIKey   string `env:"CLAUDE_API_KEY"`
	LLMModel       string `env:"LLM_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	LLMMaxTokens   int    `env:"LLM_MAX_TOKENS" envDefault:"1024"`
	LLMUpstreamURL string `env:"LLM_UPSTREAM_URL" envDefault:"https://api.anthropic.com/v1/messages"`

	// Engines created for voice sessions post through the proxy unless a
	// local key is set, in which case they talk to the upstream directly.
	AgentAPIKey   string `env:"AGENT_API_KEY"`
	// Both default to this process's own endpoints on HTTPAddress.
	AgentProxyURL string `env:"AGENT_PROXY_URL"`

	KnowledgeDir     string        `env:"KNOWLEDGE_DIR" envDefault:"./chatbot-training"`
	KnowledgeBaseURL string        `env:"KNOWLEDGE_BASE_URL"`
	ContextWait      time.Duration `env:"CONTEXT_WAIT" envDefault:"5s"`

	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabaseServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseBucket         string `env:"SUPABASE_BUCKET" envDefault:"knowledge"`
	SupabasePrefix         string `env:"SUPABASE_PREFIX" envDefault:"chatbot-training"`

	AssemblyAIKey     string `env:"ASSEMBLYAI_API_KEY"`
	TTSProvider       string `env:"TTS_PROVIDER" envDefault:"deepgram"`
	DeepgramKey       string `env:"DEEPGRAM_API_KEY"`
	DeepgramModel     string `env:"DEEPGRAM_MODEL" envDefault:"aura-2-thalia-en"`
	ElevenLabsKey     string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `env:"ELEVENLABS_VOICE_ID"`
}

// Load reads .env (if present) and environment variables and returns Config with sane defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}

	cfg.TTSProvider = strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	switch cfg.TTSProvider {
	case "deepgram", "elevenlabs":
	default:
		return Config{}, fmt.Errorf("unknown TTS_PROVIDER %q", cfg.TTSProvider)
	}
	if cfg.LLMMaxTokens <= 0 {
		cfg.LLMMaxTokens = 1024
	}
	if cfg.ContextWait < 0 {
		cfg.ContextWait = 0
	}
	self, err := selfURL(cfg.HTTPAddress)
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_ADDRESS: %w", err)
	}
	if cfg.AgentProxyURL == "" {
		cfg.AgentProxyURL = self + "/api/chat"
	}
	if cfg.KnowledgeBaseURL == "" {
		cfg.KnowledgeBaseURL = self + "/chatbot-training/"
	}

	cfg.warnMissing()
	return cfg, nil
}

// selfURL is the loopback base URL of a server listening on addr.
func selfURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// UseSupabase reports whether knowledge documents come from Supabase Storage.
func (c Config) UseSupabase() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceRoleKey != ""
}

func (c Config) warnMissing() {
	if c.ClaudeAPIKey == "" {
		log.Warn().Msg("CLAUDE_API_KEY not set - /api/chat will answer 500")
	}
	if c.AgentAPIKey != "" {
		log.Warn().Msg("AGENT_API_KEY set - voice sessions call the upstream directly (debug only)")
	}
	if c.AssemblyAIKey == "" {
		log.Info().Msg("ASSEMBLYAI_API_KEY not set - server-side transcription disabled")
	}
	switch c.TTSProvider {
	case "deepgram":
		if c.DeepgramKey == "" {
			log.Info().Msg("DEEPGRAM_API_KEY not set - server-side speech disabled")
		}
	case "elevenlabs":
		if c.ElevenLabsKey == "" || c.ElevenLabsVoiceID == "" {
			log.Info().Msg("ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - server-side speech disabled")
		}
	}
}
