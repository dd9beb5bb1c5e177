package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/szaher/mdtboard/internal/discussion"
)

func newRunCmd() *cobra.Command {
	var (
		caseFile    string
		question    string
		specialties []string
		rounds      int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one discussion to completion and print the decision",
		Long: `Run reads a case description from a file, assembles the requested
specialist roster, runs the full discussion, exports the record, and
prints the final recommendation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(caseFile)
			if err != nil {
				return fmt.Errorf("read case file: %w", err)
			}
			caseText := strings.TrimSpace(string(data))
			if caseText == "" {
				return fmt.Errorf("case file %s is empty", caseFile)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer boundedShutdown(a)

			if rounds > 0 {
				a.cfg.Discussion.MaxRounds = rounds
			}

			roster, err := a.buildParticipants(specialties, nil)
			if err != nil {
				return err
			}

			sid := a.store.Create("cli", nil)
			defer a.store.Destroy(sid)

			id, err := a.engine.Start(discussion.StartRequest{
				SessionID:    sid,
				CaseText:     caseText,
				Question:     question,
				Participants: roster,
			})
			if err != nil {
				return err
			}
			a.logger.Info("discussion running", "discussion", id, "specialties", specialties)

			rec, err := a.engine.Wait(ctx, id)
			if err != nil {
				return err
			}
			if rec.State == discussion.StateErrored {
				return fmt.Errorf("discussion errored: %s", rec.LastError)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Discussion %s (%s, %d rounds)\n", rec.ID, rec.State, rec.RoundsCompleted)
			for _, round := range rec.Rounds {
				fmt.Fprintf(out, "\n--- %s ---\n", round.Label)
				for _, c := range round.Contributions {
					if c.Succeeded {
						fmt.Fprintf(out, "\n[%s]\n%s\n", c.Participant, c.Text)
					} else {
						fmt.Fprintf(out, "\n[%s] no contribution: %s\n", c.Participant, c.Err)
					}
				}
			}
			fmt.Fprintf(out, "\n--- decision ---\n\n%s\n", rec.Decision)
			if q := rec.Quality; q != nil {
				fmt.Fprintf(out, "\nQuality: %.1f/10 (depth %.1f, diversity %.1f, consistency %.1f)\n",
					q.Overall, q.DiscussionDepth, q.PerspectiveDiversity, q.LogicConsistency)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&caseFile, "case", "c", "", "Path to the case description file (required)")
	cmd.Flags().StringVarP(&question, "question", "q", "", "Focus question for the team")
	cmd.Flags().StringSliceVarP(&specialties, "specialties", "s", []string{"internal_medicine", "surgery", "pharmacy"}, "Specialties to include")
	cmd.Flags().IntVarP(&rounds, "rounds", "r", 0, "Override the configured number of rounds")
	cmd.MarkFlagRequired("case")

	return cmd
}
