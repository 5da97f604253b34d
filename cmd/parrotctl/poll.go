package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"parrotflower-gateway/internal/ble"
	"parrotflower-gateway/internal/flower"
)

var (
	flagModel       string
	flagReadTimeout time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll <mac>",
	Short: "Poll data from a sensor",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return err
		}
		return validMAC(args[0])
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		mac := strings.ToUpper(args[0])

		profile, ok := flower.ProfileForName(flagModel)
		if !ok {
			return fmt.Errorf("unknown model %q", flagModel)
		}

		transport, err := ble.NewTransport(flagBackend, ble.Options{
			Adapter: flagAdapter,
			Logger:  slog.Default(),
		})
		if err != nil {
			return err
		}
		defer transport.Close()

		poller, err := flower.NewPoller(mac, transport, flower.Options{
			Profile:     profile,
			ReadTimeout: flagReadTimeout,
			Logger:      slog.Default(),
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Getting data from Parrot Flower Power & Pot")

		fw, err := poller.FirmwareVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "FW: %s\n", fw)

		name, err := poller.Name(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Name: %s\n", name)

		for _, p := range profile.ParameterNames() {
			v, err := poller.ParameterValue(ctx, p, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %v\n", label(p), v)
		}
		return nil
	},
}

func init() {
	pollCmd.Flags().StringVarP(&flagModel, "model", "m", "flower power", "sensor model: 'flower power' or 'parrot pot'")
	pollCmd.Flags().DurationVar(&flagReadTimeout, "read-timeout", flower.DefaultReadTimeout, "timeout for a single characteristic read")
}

// label turns "soil_temperature" into "Soil temperature".
func label(p flower.Parameter) string {
	s := strings.ReplaceAll(string(p), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
