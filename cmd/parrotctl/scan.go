package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"parrotflower-gateway/internal/ble"
)

var flagScanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for sensors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Scanning for %v...\n", flagScanTimeout)

		devices, err := ble.NewScanner(flagAdapter, slog.Default()).Scan(cmd.Context(), flagScanTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Found %d devices:\n", len(devices))
		for _, d := range devices {
			fmt.Fprintf(out, "  %s %s\n", d.Address, d.Name)
		}
		return nil
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the available backends",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		opts := ble.Options{Adapter: flagAdapter}
		for _, b := range ble.Backends() {
			state := "unavailable"
			if b.Available(opts) {
				state = "available"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", b.Name, state)
		}
	},
}

func init() {
	scanCmd.Flags().DurationVarP(&flagScanTimeout, "timeout", "t", 10*time.Second, "scan duration")
}
