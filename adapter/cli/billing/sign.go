package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/paysync/adapter/cli"
	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

var (
	signEventPath string
	signSecret    string
	signAt        int64
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print the signature header for a payload",
	Long: `Print the signature header the provider would send for a payload.
Uses WEBHOOK_SECRET unless --secret is given.

Examples:
  paysync billing sign --event ./event.json
  curl -H "Paddle-Signature: $(paysync billing sign --event ./event.json)" --data-binary @event.json ...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if signEventPath == "" {
			return errors.New("event path is required")
		}
		payload, err := security.ReadPayload(signEventPath, "")
		if err != nil {
			return err
		}

		signer, err := cli.GetApp().Signer(signSecret)
		if err != nil {
			return err
		}

		ts := time.Now()
		if signAt > 0 {
			ts = time.Unix(signAt, 0)
		}
		fmt.Fprintln(cmd.OutOrStdout(), signer.Sign(payload, ts))
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signEventPath, "event", "", "path to webhook event JSON")
	signCmd.Flags().StringVar(&signSecret, "secret", "", "signing secret (defaults to WEBHOOK_SECRET)")
	signCmd.Flags().Int64Var(&signAt, "ts", 0, "unix timestamp to sign with (defaults to now)")
}
