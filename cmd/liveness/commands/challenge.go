package commands

import (
	"github.com/spf13/cobra"

	"go-liveness-verifier/challenge"
	"go-liveness-verifier/models"
)

func challengeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "challenge",
		Short: "Print a fresh challenge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := challenge.NewGenerator(challenge.WithSource(newSource())).GenerateChallenge()
			return printJSON(cmd.OutOrStdout(), models.StartChallengeResponse{
				ChallengeId: c.ID,
				Gesture:     string(c.Gesture),
				Expression:  string(c.Expression),
				ExpiresAt:   c.ExpiresAt,
			})
		},
	}
	return cmd
}
