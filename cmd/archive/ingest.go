package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/warp/archive-engine/archive"
)

var ingestParallel int

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Ingest spreadsheets of agreements",
	Long: `Ingest one or more .xlsx/.xlsm/.csv files. Files are processed in parallel
and independently: a file that fails does not stop the others. Agreements
already in the archive are left untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := appFrom(cmd.Context()).engine
		var (
			mu     sync.Mutex
			failed int
		)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(ingestParallel)
		for _, path := range args {
			path := path // per-iteration copy (pre-Go 1.22 loop semantics)
			g.Go(func() error {
				report, err := ingestFile(ctx, engine, path)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					fmt.Printf("%s %s: %v\n", color.New(color.FgRed).Sprint("FAIL"), path, err)
					return nil
				}
				printReport(path, report)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestParallel, "parallel", 4, "files ingested at the same time")
}

func ingestFile(ctx context.Context, engine *archive.Engine, path string) (*archive.IngestReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return engine.IngestFile(ctx, filepath.Base(path), f)
}

func printReport(path string, r *archive.IngestReport) {
	fmt.Printf("%s %s (sheet %q, header row %d)\n",
		color.New(color.FgGreen).Sprint("OK  "), path, r.Sheet, r.HeaderRow)
	fmt.Printf("      attempted %d: %s, %s, skipped %d, invalid %s\n",
		r.Attempted,
		color.New(color.FgGreen).Sprintf("%d new", r.Inserted),
		color.New(color.FgBlue).Sprintf("%d existing", r.Duplicates),
		r.Skipped,
		colorCount(r.Invalid))
	for _, o := range r.Rows {
		if o.Status == archive.RowInvalid {
			fmt.Printf("      row %d: %s\n", o.Row, o.Reason)
		}
	}
}

func colorCount(n int) string {
	if n == 0 {
		return "0"
	}
	return color.New(color.FgYellow).Sprint(n)
}
