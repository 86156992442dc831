package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/dayuer/castbot/internal/compose"
	"github.com/dayuer/castbot/internal/config"
	"github.com/dayuer/castbot/internal/dedup"
	"github.com/dayuer/castbot/internal/dispatch"
	"github.com/dayuer/castbot/internal/mention"
	"github.com/dayuer/castbot/internal/neynar"
	"github.com/dayuer/castbot/internal/pipeline"
	"github.com/dayuer/castbot/internal/providers"
	"github.com/dayuer/castbot/internal/ratelimit"
	nanoredis "github.com/dayuer/castbot/internal/redis"
	"github.com/dayuer/castbot/internal/signature"
)

// makeGenerator creates the reply generator from the loaded config.
// Base URL and key fall back to the provider matched by model name.
func makeGenerator(cfg config.Config) *providers.OpenAI {
	g := cfg.Generation
	apiKey := g.APIKey
	if apiKey == "" {
		// Fallback: try common env vars
		for _, envKey := range []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY"} {
			if v := os.Getenv(envKey); v != "" {
				apiKey = v
				break
			}
		}
	}
	apiBase := g.BaseURL
	if apiBase == "" && strings.HasPrefix(apiKey, "sk-or-") {
		apiBase = "https://openrouter.ai/api/v1"
	}

	return providers.NewOpenAI(providers.Options{
		APIKey:      apiKey,
		APIBase:     apiBase,
		Model:       g.Model,
		MaxTokens:   g.MaxTokens,
		Temperature: g.Temperature,
		Timeout:     g.Timeout,
	})
}

// stores holds the state backends selected by store.backend.
type stores struct {
	dedup    dedup.Store
	cooldown dedup.Store // nil when bot.author_cooldown is 0
	limiter  ratelimit.Limiter
	client   *redis.Client
	gauges   map[string]func() int
}

func makeStores(ctx context.Context, cfg config.Config) (*stores, error) {
	st := &stores{gauges: make(map[string]func() int)}

	switch cfg.Store.Backend {
	case "redis":
		client, err := nanoredis.Connect(ctx, nanoredis.Config{URL: cfg.Store.RedisURL})
		if err != nil {
			return nil, err
		}
		st.client = client
		st.dedup = dedup.NewRedisStore(client, "events:", cfg.Dedup.TTL)
		st.limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.Window, cfg.RateLimit.Max)
		if cfg.Bot.AuthorCooldown > 0 {
			st.cooldown = dedup.NewRedisStore(client, "cooldown:", cfg.Bot.AuthorCooldown)
		}
	default:
		mem := dedup.NewMemoryStore(dedup.Options{TTL: cfg.Dedup.TTL, SweepInterval: cfg.Dedup.SweepInterval})
		lim := ratelimit.NewMemoryLimiter(ratelimit.Options{
			Window:        cfg.RateLimit.Window,
			Max:           cfg.RateLimit.Max,
			SweepInterval: cfg.RateLimit.SweepInterval,
			MaxTracked:    cfg.RateLimit.MaxTracked,
		})
		st.dedup, st.limiter = mem, lim
		st.gauges["dedup_keys"] = mem.Len
		st.gauges["ratelimit_callers"] = lim.Len
		if cfg.Bot.AuthorCooldown > 0 {
			cd := dedup.NewMemoryStore(dedup.Options{TTL: cfg.Bot.AuthorCooldown, SweepInterval: cfg.Dedup.SweepInterval})
			st.cooldown = cd
			st.gauges["cooldown_authors"] = cd.Len
		}
	}
	return st, nil
}

// Close releases every backend. The shared redis client goes last.
func (s *stores) Close() error {
	var errs []error
	if s.cooldown != nil {
		errs = append(errs, s.cooldown.Close())
	}
	errs = append(errs, s.dedup.Close(), s.limiter.Close())
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	return errors.Join(errs...)
}

// buildPipeline wires every stage of the webhook pipeline from cfg.
func buildPipeline(cfg config.Config, st *stores, logger *slog.Logger) (*pipeline.Pipeline, error) {
	verifier, err := signature.New(signature.Options{
		Secret: cfg.Webhook.Secret,
		Digest: cfg.Webhook.Digest,
		Prefix: cfg.Webhook.Prefix,
	})
	if err != nil {
		return nil, err
	}

	client := neynar.NewClient(neynar.Options{
		APIKey:     cfg.Neynar.APIKey,
		SignerUUID: cfg.Neynar.SignerUUID,
		BaseURL:    cfg.Neynar.BaseURL,
		ChannelID:  cfg.Neynar.ChannelID,
		Timeout:    cfg.Neynar.Timeout,
	})
	dispatcher := dispatch.New(client, dispatch.Options{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BaseBackoff: cfg.Dispatch.BaseBackoff,
		Logger:      logger,
	})

	gen := makeGenerator(cfg)
	logger.Info("generator configured", "model", gen.Model(), "provider", gen.Provider())
	composer := compose.New(gen, compose.Options{
		SystemPrompt:  cfg.Generation.SystemPrompt,
		FallbackReply: cfg.Generation.FallbackReply,
		Marker:        cfg.Generation.Marker,
		MaxChars:      cfg.Generation.MaxChars,
		Logger:        logger,
	})

	return pipeline.New(pipeline.Options{
		Limiter:    st.limiter,
		Verifier:   verifier,
		Dedup:      st.dedup,
		Cooldown:   st.cooldown,
		Detector:   mention.NewDetector(mention.Identity{Handle: cfg.Bot.Handle, FID: cfg.Bot.FID}),
		Composer:   composer,
		Dispatcher: dispatcher,
		KeyMode:    pipeline.KeyMode(cfg.Dedup.KeyMode),
		React:      cfg.Bot.React,
		Workers:    cfg.Pipeline.Workers,
		QueueSize:  cfg.Pipeline.QueueSize,
		Logger:     logger,
	})
}

// --- PID file helpers ---

const pidFileName = "castbot.pid"

func pidFilePath() string {
	return filepath.Join(filepath.Dir(resolvedConfigPath()), pidFileName)
}

func writePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(pidFilePath()), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func removePID() {
	os.Remove(pidFilePath())
}

// getRunningPID returns the recorded PID if that process is still alive.
func getRunningPID() (int, bool) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return fmt.Sprintf("%s****%s", secret[:4], secret[len(secret)-4:])
}
