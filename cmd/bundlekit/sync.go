package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/bundlekit/manifest"
	"github.com/BaSui01/bundlekit/reconcile"
)

func runSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	common := registerCommonFlags(fs)
	quiet := fs.Bool("quiet", false, "Do not print the active plugins")
	_ = fs.Parse(args)

	cfg, err := common.load()
	if err != nil {
		return err
	}
	rt := newRuntime(cfg)
	defer rt.close()

	out, err := rt.sync(context.Background())
	rt.writeTextfile()
	if err != nil {
		return err
	}
	if !*quiet {
		printOutcome(os.Stdout, out)
	}
	return nil
}

// outcome is what one pass reports to the user.
type outcome struct {
	res     *reconcile.Result
	config  []string
	routing []string
}

// sync runs one pass on a fresh kernel.
func (rt *runtime) sync(ctx context.Context) (*outcome, error) {
	k, err := rt.kernel()
	if err != nil {
		return nil, err
	}
	configFiles, routingFiles, err := k.ResourceFiles(ctx)
	if err != nil {
		return nil, err
	}
	res, _ := k.Result()
	return &outcome{res: res, config: configFiles, routing: routingFiles}, nil
}

func (rt *runtime) writeTextfile() {
	if rt.registry == nil || rt.cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := prometheus.WriteToTextfile(rt.cfg.Metrics.TextfilePath, rt.registry); err != nil {
		rt.logger.Warn("failed to write metrics textfile",
			zap.String("path", rt.cfg.Metrics.TextfilePath),
			zap.Error(err))
	}
}

func printOutcome(w io.Writer, out *outcome) {
	printResult(w, out.res)
	printFiles(w, "Config files", out.config)
	printFiles(w, "Routing files", out.routing)
}

func printFiles(w io.Writer, label string, files []string) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, f := range files {
		fmt.Fprintf(w, "  %s\n", f)
	}
}

func printResult(w io.Writer, res *reconcile.Result) {
	fmt.Fprintf(w, "Environment: %s (pass %s, %s)\n", res.Environment, res.PassID, res.Duration)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPLUGIN\tCLASS\tPACKAGE\t")
	for i, e := range res.Active.Entries() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", i+1, e.Identifier, e.ClassName, e.Package)
	}
	_ = tw.Flush()

	printActions(w, "Installed", res.Installed)
	printActions(w, "Uninstalled", res.Uninstalled)
	if len(res.Removed) > 0 {
		fmt.Fprintf(w, "Removed: %v\n", res.Removed)
	}
}

func printActions(w io.Writer, label string, actions map[string]manifest.LifecycleAction) {
	if len(actions) == 0 {
		return
	}
	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintf(w, "%s:\n", label)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s -> %s\n", id, actions[id].ClassName)
	}
}
