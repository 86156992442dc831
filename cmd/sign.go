package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dayuer/castbot/internal/signature"
)

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Print the webhook signature header for a payload",
	Long: `Sign a payload with webhook.secret, as Neynar would. Reads stdin when
no file is given. Useful for replaying events with curl:

  curl -H "$(castbot sign event.json)" --data-binary @event.json localhost:3000/webhook`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

func init() {
	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v, err := signature.New(signature.Options{
		Secret: cfg.Webhook.Secret,
		Digest: cfg.Webhook.Digest,
		Prefix: cfg.Webhook.Prefix,
	})
	if err != nil {
		return err
	}
	if !v.Enabled() {
		return errors.New("webhook.secret is not set (NEYNAR_WEBHOOK_SECRET)")
	}

	var body []byte
	if len(args) == 1 {
		body, err = os.ReadFile(args[0])
	} else {
		body, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}

	header := cfg.Webhook.SignatureHeader
	if header == "" {
		header = signature.DefaultHeader
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", header, v.Sign(body))
	return nil
}
