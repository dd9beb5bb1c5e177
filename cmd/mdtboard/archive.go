package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/szaher/mdtboard/internal/config"
	"github.com/szaher/mdtboard/internal/export"
)

func newArchiveCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse exported discussion records",
	}
	cmd.PersistentFlags().StringVar(&owner, "owner", "cli", "Owner whose records to browse")

	openArchive := func() (*export.Archive, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return export.NewArchive(cfg.Export.Dir), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived discussions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			entries, err := a.List(owner)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived discussions")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATE\tROUNDS\tFINISHED\tCASE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.State, e.Rounds, e.Finished, e.Preview)
			}
			return w.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show <discussion-id>",
		Short: "Print one archived discussion's decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			rec, err := a.Load(owner, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discussion %s (%s)\n\n%s\n", rec.ID, rec.State, rec.Decision)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "delete <discussion-id>",
		Short: "Delete an archived discussion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive()
			if err != nil {
				return err
			}
			return a.Delete(owner, args[0])
		},
	}

	cmd.AddCommand(list, show, remove)
	return cmd
}
