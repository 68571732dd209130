package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/store"
)

var importCmd = &cobra.Command{
	Use:   "import [pattern|dir]",
	Short: "Load annotation CSV files into the SQLite store",
	Long: `Reads every annotation CSV matching pattern (default: the configured
annotations glob) and upserts the rows into the store at db_path. A directory
imports every CSV file in it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	pattern := cfg.Annotations
	if len(args) == 1 {
		pattern = args[0]
	}
	if fi, err := os.Stat(pattern); err == nil && fi.IsDir() {
		if pattern, err = datasets.FindCSVInDir(pattern); err != nil {
			return err
		}
	}
	anns, err := datasets.LoadAnnotations(pattern)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.ImportAnnotations(cmd.Context(), anns)
	if err != nil {
		return err
	}
	logger.Info("annotations imported", zap.String("pattern", pattern), zap.String("db", cfg.DBPath), zap.Int("rows", n))
	cmd.Printf("imported %d annotations into %s\n", n, cfg.DBPath)
	return nil
}
