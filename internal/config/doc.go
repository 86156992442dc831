// Package config handles configuration loading, saving, and schema definition.
package config

import "time"

// Config is the top-level castbot configuration.
// Keys are snake_case in YAML and map to CASTBOT_<SECTION>_<KEY> env vars.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Neynar     NeynarConfig     `mapstructure:"neynar"`
	Bot        BotConfig        `mapstructure:"bot"`
	Generation GenerationConfig `mapstructure:"generation"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	WebhookPath     string        `mapstructure:"webhook_path"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// TrustProxyHeaders keys rate limiting on X-Forwarded-For/X-Real-IP.
	// Leave off unless a proxy in front rewrites those headers.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// WebhookConfig holds inbound signature settings. An empty secret disables
// verification.
type WebhookConfig struct {
	Secret          string `mapstructure:"secret"`
	SignatureHeader string `mapstructure:"signature_header"`
	Digest          string `mapstructure:"digest"`
	Prefix          string `mapstructure:"prefix"` // e.g. "sha256=", empty for bare hex
}

// NeynarConfig holds outbound API settings.
type NeynarConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	SignerUUID string        `mapstructure:"signer_uuid"`
	BaseURL    string        `mapstructure:"base_url"`
	ChannelID  string        `mapstructure:"channel_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// BotConfig identifies the bot account.
type BotConfig struct {
	Handle         string        `mapstructure:"handle"`
	FID            uint64        `mapstructure:"fid"`
	React          bool          `mapstructure:"react"`
	AuthorCooldown time.Duration `mapstructure:"author_cooldown"` // 0 disables
}

// GenerationConfig holds text-generation settings.
type GenerationConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"`
	MaxChars      int           `mapstructure:"max_chars"`
	SystemPrompt  string        `mapstructure:"system_prompt"`
	FallbackReply string        `mapstructure:"fallback_reply"`
	Marker        string        `mapstructure:"marker"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Bounds on dedup.ttl.
const (
	MinDedupTTL = 5 * time.Minute
	MaxDedupTTL = 10 * time.Minute
)

// DedupConfig holds event deduplication settings.
type DedupConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	KeyMode       string        `mapstructure:"key_mode"` // hash | composite
}

// RateLimitConfig holds per-caller rate limit settings.
type RateLimitConfig struct {
	Window        time.Duration `mapstructure:"window"`
	Max           int           `mapstructure:"max"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxTracked    int           `mapstructure:"max_tracked"`
}

// DispatchConfig holds outbound retry settings.
type DispatchConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
}

// PipelineConfig holds async worker settings.
type PipelineConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// StoreConfig selects where dedup and rate-limit state lives.
type StoreConfig struct {
	Backend  string `mapstructure:"backend"` // memory | redis
	RedisURL string `mapstructure:"redis_url"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"` // text | json
	AddSource bool   `mapstructure:"add_source"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen:          "0.0.0.0:3000",
			WebhookPath:     "/webhook",
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Webhook: WebhookConfig{
			SignatureHeader: "X-Neynar-Signature",
			Digest:          "sha256",
		},
		Neynar: NeynarConfig{
			BaseURL: "https://api.neynar.com",
			Timeout: 15 * time.Second,
		},
		Bot: BotConfig{
			React: true,
		},
		Generation: GenerationConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   200,
			Temperature: 0.7,
			MaxChars:    320,
			Timeout:     30 * time.Second,
		},
		Dedup: DedupConfig{
			TTL:           10 * time.Minute,
			SweepInterval: time.Minute,
			KeyMode:       "hash",
		},
		RateLimit: RateLimitConfig{
			Window:        15 * time.Minute,
			Max:           100,
			SweepInterval: time.Minute,
			MaxTracked:    10000,
		},
		Dispatch: DispatchConfig{
			MaxAttempts: 3,
			BaseBackoff: time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:   4,
			QueueSize: 256,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// settings flattens cfg into viper keys. Durations are written as strings
// so saved files stay readable.
func settings(cfg Config) map[string]any {
	return map[string]any{
		"server.listen":              cfg.Server.Listen,
		"server.webhook_path":        cfg.Server.WebhookPath,
		"server.max_body_bytes":      cfg.Server.MaxBodyBytes,
		"server.shutdown_timeout":    cfg.Server.ShutdownTimeout.String(),
		"server.trust_proxy_headers": cfg.Server.TrustProxyHeaders,

		"webhook.secret":           cfg.Webhook.Secret,
		"webhook.signature_header": cfg.Webhook.SignatureHeader,
		"webhook.digest":           cfg.Webhook.Digest,
		"webhook.prefix":           cfg.Webhook.Prefix,

		"neynar.api_key":     cfg.Neynar.APIKey,
		"neynar.signer_uuid": cfg.Neynar.SignerUUID,
		"neynar.base_url":    cfg.Neynar.BaseURL,
		"neynar.channel_id":  cfg.Neynar.ChannelID,
		"neynar.timeout":     cfg.Neynar.Timeout.String(),

		"bot.handle":          cfg.Bot.Handle,
		"bot.fid":             cfg.Bot.FID,
		"bot.react":           cfg.Bot.React,
		"bot.author_cooldown": cfg.Bot.AuthorCooldown.String(),

		"generation.api_key":        cfg.Generation.APIKey,
		"generation.base_url":       cfg.Generation.BaseURL,
		"generation.model":          cfg.Generation.Model,
		"generation.max_tokens":     cfg.Generation.MaxTokens,
		"generation.temperature":    cfg.Generation.Temperature,
		"generation.max_chars":      cfg.Generation.MaxChars,
		"generation.system_prompt":  cfg.Generation.SystemPrompt,
		"generation.fallback_reply": cfg.Generation.FallbackReply,
		"generation.marker":         cfg.Generation.Marker,
		"generation.timeout":        cfg.Generation.Timeout.String(),

		"dedup.ttl":            cfg.Dedup.TTL.String(),
		"dedup.sweep_interval": cfg.Dedup.SweepInterval.String(),
		"dedup.key_mode":       cfg.Dedup.KeyMode,

		"ratelimit.window":         cfg.RateLimit.Window.String(),
		"ratelimit.max":            cfg.RateLimit.Max,
		"ratelimit.sweep_interval": cfg.RateLimit.SweepInterval.String(),
		"ratelimit.max_tracked":    cfg.RateLimit.MaxTracked,

		"dispatch.max_attempts": cfg.Dispatch.MaxAttempts,
		"dispatch.base_backoff": cfg.Dispatch.BaseBackoff.String(),

		"pipeline.workers":    cfg.Pipeline.Workers,
		"pipeline.queue_size": cfg.Pipeline.QueueSize,

		"store.backend":   cfg.Store.Backend,
		"store.redis_url": cfg.Store.RedisURL,

		"logging.level":      cfg.Logging.Level,
		"logging.format":     cfg.Logging.Format,
		"logging.add_source": cfg.Logging.AddSource,
	}
}
