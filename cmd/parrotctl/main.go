// Command parrotctl reads Parrot Flower Power & Pot sensors from the shell.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"parrotflower-gateway/internal/ble"
)

var macRe = regexp.MustCompile(`^A0:14:3D:[0-9A-F]{2}:[0-9A-F]{2}:[0-9A-F]{2}$`)

var (
	flagBackend string
	flagAdapter string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:          "parrotctl",
	Short:        "Read Parrot Flower Power & Pot sensors",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagBackend, "backend", "b", "gatttool", "radio backend (see 'backends')")
	rootCmd.PersistentFlags().StringVar(&flagAdapter, "adapter", ble.DefaultAdapter, "bluetooth adapter")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(backendsCmd)
}

// validMAC checks that s looks like a Parrot sensor address.
func validMAC(s string) error {
	if !macRe.MatchString(strings.ToUpper(s)) {
		return fmt.Errorf("the MAC address %q seems to be in the wrong format", s)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
