package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CASTBOT_SERVER_LISTEN.
const EnvPrefix = "CASTBOT"

// envAliases are the conventional variable names accepted besides the
// CASTBOT_* form.
var envAliases = map[string]string{
	"webhook.secret":      "NEYNAR_WEBHOOK_SECRET",
	"neynar.api_key":      "NEYNAR_API_KEY",
	"neynar.signer_uuid":  "NEYNAR_SIGNER_UUID",
	"bot.handle":          "BOT_USERNAME",
	"bot.fid":             "BOT_FID",
	"generation.api_key":  "OPENAI_API_KEY",
	"generation.base_url": "OPENAI_BASE_URL",
	"store.redis_url":     "REDIS_URL",
}

// GetConfigPath returns the default config file path (~/.castbot/config.yaml).
func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".castbot", "config.yaml")
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, val := range settings(DefaultConfig()) {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		// The prefixed name is listed first so it wins over the alias.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), alias)
	}
	return v
}

// Load reads configuration from a YAML file and the environment.
// If path is empty, uses the default config path.
// If the file doesn't exist, defaults and environment are used.
func Load(path string) (Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Save writes configuration to a YAML file.
// If path is empty, uses the default config path.
func Save(cfg Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	for key, val := range settings(cfg) {
		v.Set(key, val)
	}
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	// Secrets may be stored here.
	return os.WriteFile(path, data, 0600)
}
