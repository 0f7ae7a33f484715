package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go-liveness-verifier/challenge"
	"go-liveness-verifier/models"
	"go-liveness-verifier/verification"
)

var (
	gestureName    string
	expressionName string
	framesPath     string
	expired        bool
)

// verify --gesture G --expression E --frames file.json
func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Score recorded frames against a gesture and expression",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gesture, err := challenge.ParseGesture(gestureName)
			if err != nil {
				return err
			}
			expression, err := challenge.ParseExpression(expressionName)
			if err != nil {
				return err
			}
			cfg, err := loadVerificationConfig(configPath)
			if err != nil {
				return err
			}
			frames, err := readFrames(cmd.InOrStdin(), framesPath)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			source := newSource()
			engine, err := verification.NewEngine(cfg, source)
			if err != nil {
				return err
			}

			now := time.Now()
			issuedAt := now
			if expired {
				issuedAt = now.Add(-2 * challenge.TTL)
			}
			generated := challenge.NewGenerator(
				challenge.WithSource(source),
				challenge.WithClock(func() time.Time { return issuedAt }),
			).GenerateChallenge()
			c := challenge.Challenge{
				ID:         generated.ID,
				Gesture:    gesture,
				Expression: expression,
				CreatedAt:  generated.CreatedAt,
				ExpiresAt:  generated.ExpiresAt,
			}

			slog.Debug("Replaying frames", "challenge_id", c.ID, "gesture", gesture, "expression", expression, "frames", len(frames))
			result := engine.Verify(c, models.ToFrameRecords(frames), now)

			if err := printJSON(cmd.OutOrStdout(), models.NewVerificationResponse(c.ID, result)); err != nil {
				return err
			}
			if !result.Success {
				return ErrVerificationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gestureName, "gesture", "", "gesture the subject was asked for")
	cmd.Flags().StringVar(&expressionName, "expression", "", "expression the subject was asked for")
	cmd.Flags().StringVar(&framesPath, "frames", "", "JSON array of frames, or - for stdin")
	cmd.Flags().BoolVar(&expired, "expired", false, "verify as if the challenge window had already closed")
	cmd.Flags().StringVar(&configPath, "config", "", "JSON file with verification thresholds")
	_ = cmd.MarkFlagRequired("gesture")
	_ = cmd.MarkFlagRequired("expression")
	_ = cmd.MarkFlagRequired("frames")
	return cmd
}

func readFrames(stdin io.Reader, path string) ([]models.Landmarks, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open frames: %w", err)
		}
		defer f.Close()
		r = f
	}

	var frames []models.Landmarks
	if err := json.NewDecoder(r).Decode(&frames); err != nil {
		return nil, fmt.Errorf("failed to decode frames: %w", err)
	}
	for i, f := range frames {
		if err := models.Validate(f); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return frames, nil
}
