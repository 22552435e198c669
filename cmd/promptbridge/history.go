package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"promptbridge/internal/config"
	"promptbridge/internal/db"
	"promptbridge/internal/historydb"
)

func listHistory(_ context.Context, cfg config.Config, limit int) error {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := store.Recent(limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCOMPLETED\tEXIT\tCODE\tPROMPTS\tMODE\tCOMMAND")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			row.RunID,
			row.CompletedAt.Format("2006-01-02 15:04:05"),
			row.ExitReason,
			row.ExitCode,
			row.PromptCount,
			row.RiskMode,
			row.Command,
		)
	}
	return w.Flush()
}

func showEvents(_ context.Context, cfg config.Config, runID string) error {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	events, err := store.Events(runID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tKIND\tSOURCE\tRESPONSE\tPROMPT")
	for _, evt := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%q\t%s\n",
			evt.At.Format("15:04:05"),
			evt.Kind,
			evt.Source,
			evt.Response,
			evt.Text,
		)
	}
	return w.Flush()
}

func openStore(cfg config.Config) (*historydb.Store, func(), error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		if gcfg, err := loadGlobalConfig(); err == nil && gcfg.DBPath != "" {
			dbPath = gcfg.DBPath
		}
	}
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	gdb, err := db.OpenSQLite(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open history db: %w", err)
	}
	store, err := historydb.NewStore(gdb)
	if err != nil {
		_ = db.Close(gdb)
		return nil, nil, err
	}
	return store, func() { _ = db.Close(gdb) }, nil
}
