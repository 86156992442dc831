package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dayuer/castbot/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a default castbot configuration",
	RunE:  runOnboard,
}

const envTemplate = `# castbot environment. Values here override the config file.
NEYNAR_WEBHOOK_SECRET=
NEYNAR_API_KEY=
NEYNAR_SIGNER_UUID=
BOT_USERNAME=
BOT_FID=
OPENAI_API_KEY=
# REDIS_URL=redis://localhost:6379/0
`

func init() {
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s\n", path)
	} else {
		if err := config.Save(config.DefaultConfig(), path); err != nil {
			return fmt.Errorf("creating config: %w", err)
		}
		fmt.Printf("✓ Created config at %s\n", path)
	}

	envPath := filepath.Join(filepath.Dir(path), ".env.example")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := os.WriteFile(envPath, []byte(envTemplate), 0600); err != nil {
			return fmt.Errorf("creating %s: %w", envPath, err)
		}
		fmt.Printf("  Created %s\n", envPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Fill in the Neynar and bot settings (or export the variables in .env.example)")
	fmt.Println("  2. Point your Neynar webhook at http://<host>:3000/webhook")
	fmt.Println("  3. Run: castbot serve")
	return nil
}
