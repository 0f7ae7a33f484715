package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go-liveness-verifier/challenge"
	"go-liveness-verifier/logging"
	"go-liveness-verifier/verification"
)

// ErrVerificationFailed is returned by verify after the result was printed.
var ErrVerificationFailed = errors.New("verification failed")

var (
	logLevel   string
	seed       int64
	configPath string
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "liveness",
		Short:         "Challenge-response liveness checks from the command line",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.InitLoggerWithFormat(logLevel, "text")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().Int64Var(&seed, "seed", 0, "seed for the random source (default: current time)")

	root.AddCommand(challengeCmd(), verifyCmd())
	return root
}

func newSource() challenge.Source {
	if seed == 0 {
		return challenge.NewLockedSource(time.Now().UnixNano())
	}
	return challenge.NewLockedSource(seed)
}

// loadVerificationConfig overlays the thresholds in path on the defaults.
func loadVerificationConfig(path string) (verification.Config, error) {
	cfg := verification.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read verification config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse verification config: %w", err)
	}
	return cfg, cfg.Validate()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
