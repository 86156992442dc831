package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayuer/castbot/internal/config"
	"github.com/dayuer/castbot/internal/providers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show castbot configuration and probe a running server",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("castbot status")
	fmt.Println()
	fmt.Printf("Config: %s\n", resolvedConfigPath())
	fmt.Printf("Listen: %s%s\n", cfg.Server.Listen, cfg.Server.WebhookPath)
	fmt.Printf("Bot: @%s (fid %d)\n", cfg.Bot.Handle, cfg.Bot.FID)
	fmt.Printf("Model: %s\n", cfg.Generation.Model)
	if spec := providers.Resolve(cfg.Generation.BaseURL, cfg.Generation.Model); spec != nil {
		fmt.Printf("Provider: %s\n", spec.Label())
	}
	fmt.Printf("Store: %s\n", cfg.Store.Backend)

	fmt.Println("\nSecrets:")
	fmt.Printf("  Webhook secret: %s\n", mask(cfg.Webhook.Secret))
	fmt.Printf("  Neynar API key: %s\n", mask(cfg.Neynar.APIKey))
	fmt.Printf("  Signer UUID: %s\n", mask(cfg.Neynar.SignerUUID))
	fmt.Printf("  Generation key: %s\n", mask(cfg.Generation.APIKey))

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\n⚠ Config problems:\n%v\n", err)
	}

	fmt.Println()
	if pid, ok := getRunningPID(); ok {
		fmt.Printf("Process: running (pid %d)\n", pid)
	} else {
		fmt.Println("Process: not running")
	}
	if status, err := probeHealth(cfg, 2*time.Second); err != nil {
		fmt.Printf("Health: unreachable (%v)\n", err)
	} else {
		fmt.Printf("Health: %s\n", status)
	}
	return nil
}

// probeHealth calls GET /health on the configured listener.
func probeHealth(cfg config.Config, timeout time.Duration) (string, error) {
	host, port, err := net.SplitHostPort(cfg.Server.Listen)
	if err != nil {
		return "", err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + "/health")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode health: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return body.Status, nil
}
