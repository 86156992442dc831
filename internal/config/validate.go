package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that cfg can run the bot. All problems are reported
// together.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Listen == "" {
		add("server.listen is required")
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		add("server.webhook_path must start with /, got %q", c.Server.WebhookPath)
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes must be positive")
	}

	switch strings.ToLower(c.Webhook.Digest) {
	case "", "sha256", "sha512":
	default:
		add("webhook.digest must be sha256 or sha512, got %q", c.Webhook.Digest)
	}

	if c.Neynar.APIKey == "" {
		add("neynar.api_key is required (NEYNAR_API_KEY)")
	}
	if c.Neynar.SignerUUID == "" {
		add("neynar.signer_uuid is required (NEYNAR_SIGNER_UUID)")
	}
	if c.Bot.Handle == "" && c.Bot.FID == 0 {
		add("bot.handle or bot.fid is required (BOT_USERNAME, BOT_FID)")
	}
	if c.Bot.AuthorCooldown < 0 {
		add("bot.author_cooldown must not be negative")
	}

	if c.Generation.MaxChars <= 0 || c.Generation.MaxChars > 320 {
		add("generation.max_chars must be between 1 and 320, got %d", c.Generation.MaxChars)
	}

	if c.Dedup.TTL < MinDedupTTL || c.Dedup.TTL > MaxDedupTTL {
		add("dedup.ttl must be between %s and %s, got %s", MinDedupTTL, MaxDedupTTL, c.Dedup.TTL)
	}
	switch c.Dedup.KeyMode {
	case "hash", "composite":
	default:
		add("dedup.key_mode must be hash or composite, got %q", c.Dedup.KeyMode)
	}

	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		add("ratelimit.window and ratelimit.max must be positive")
	}
	if c.Dispatch.MaxAttempts < 1 {
		add("dispatch.max_attempts must be at least 1")
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.QueueSize < 1 {
		add("pipeline.workers and pipeline.queue_size must be at least 1")
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.RedisURL == "" {
			add("store.redis_url is required for the redis backend (REDIS_URL)")
		}
	default:
		add("store.backend must be memory or redis, got %q", c.Store.Backend)
	}

	return errors.Join(errs...)
}
