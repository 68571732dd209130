package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/sceneforecast/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List prediction runs saved in the SQLite store",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tPREDICTIONS\tCREATED\tNOTE")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Model, r.Count, r.CreatedAt.Format(time.RFC3339), r.Note)
	}
	return w.Flush()
}
