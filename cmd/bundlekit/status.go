package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/BaSui01/bundlekit/internal/history"
	"github.com/BaSui01/bundlekit/state"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := registerCommonFlags(fs)
	limit := fs.Int("limit", 10, "Number of recent passes to show")
	_ = fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	store, err := state.NewStore(cfg.StateDir(), state.WithLogger(logger))
	if err != nil {
		return err
	}
	installed, err := store.LoadInstalled()
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(installed))
	for id := range installed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := os.Stdout
	fmt.Fprintf(out, "State: %s\n", store.BaseDir())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tPLUGINS\tACTION\t")
	for _, id := range ids {
		m := installed[id]
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", id, len(m.Declarations()), orDash(m.ActionClassName()))
	}
	_ = tw.Flush()

	if !cfg.History.Enabled {
		return nil
	}
	if _, err := os.Stat(cfg.HistoryPath()); err != nil {
		fmt.Fprintln(out, "\nNo passes recorded yet.")
		return nil
	}
	rec, err := history.Open(cfg.HistoryPath(), logger)
	if err != nil {
		return err
	}
	defer rec.Close()

	passes, err := rec.Recent(context.Background(), *limit)
	if err != nil {
		return err
	}
	printPasses(out, passes)
	return nil
}

func printPasses(w io.Writer, passes []history.PassRecord) {
	fmt.Fprintln(w, "\nRecent passes:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tENV\tSTATUS\tACTIVE\tINSTALLED\tUNINSTALLED\tDURATION\t")
	for _, p := range passes {
		status := p.Status
		if p.Error != "" {
			status += ": " + p.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t\n",
			p.CreatedAt.Format(time.RFC3339), p.Environment, status,
			p.Active, p.Installed, p.Uninstalled,
			time.Duration(p.DurationMS)*time.Millisecond)
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
