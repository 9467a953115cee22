package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"filing_screener/pkg/api/snapshot"
	"filing_screener/pkg/core/calc"
	"filing_screener/pkg/core/ingest"
	"filing_screener/pkg/core/period"
	"filing_screener/pkg/core/report"
	"filing_screener/pkg/core/store"
	"filing_screener/pkg/core/validate"
	"filing_screener/pkg/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// withApp wires the collaborators and runs fn with a context cancelled on
// SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

// --- Resolve Command ---

var resolveCmd = &cobra.Command{
	Use:   "resolve [ticker]",
	Short: "Resolve the filings of one report year and store their snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, _ := cmd.Flags().GetInt("year")
		forms, _ := cmd.Flags().GetStringSlice("forms")
		withPrice, _ := cmd.Flags().GetBool("price")
		if len(forms) == 0 {
			forms = cfg.Edgar.Forms
		}

		return withApp(func(ctx context.Context, a *app) error {
			company, err := a.company(ctx, args[0])
			if err != nil {
				return err
			}
			jobs, err := a.engine.Jobs(ctx, company, year, forms)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Printf("No %s filings of %s report on %d\n", strings.Join(forms, "/"), company.Ticker, year)
				return nil
			}

			results := a.engine.RunBatch(ctx, jobs)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FORM\tPERIOD\tDATE\tSTATUS")
			failed := 0
			for _, r := range results {
				f := r.Job.Filing
				label := period.Label(f.ReportDate, f.IsAnnual())
				status := "ok"
				if r.Err != nil {
					status = r.Err.Error()
					failed++
				} else if len(r.Result.Missing) > 0 {
					status = fmt.Sprintf("ok (%d concepts missing)", len(r.Result.Missing))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.FormType, label, f.ReportDate.Format("2006-01-02"), status)

				if r.Err == nil && withPrice {
					if _, err := a.engine.RefreshPrice(ctx, company.Ticker, r.Result.Date); err != nil {
						log.Warn().Str("component", "cli").Str("date", r.Result.Date).Err(err).Msg("price refresh failed")
					}
				}
			}
			w.Flush()
			if failed == len(results) {
				return fmt.Errorf("all %d filings failed", failed)
			}
			return nil
		})
	},
}

func init() {
	resolveCmd.Flags().Int("year", time.Now().Year()-1, "report year")
	resolveCmd.Flags().StringSlice("forms", nil, "form types (default from config)")
	resolveCmd.Flags().Bool("price", false, "attach the market price after resolving")
}

// --- Price Command ---

var priceCmd = &cobra.Command{
	Use:   "price [ticker]",
	Short: "Attach the market price near a snapshot's reporting date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		return withApp(func(ctx context.Context, a *app) error {
			dates, err := snapshotDates(ctx, a, args[0], date)
			if err != nil {
				return err
			}
			for _, d := range dates {
				q, err := a.engine.RefreshPrice(ctx, args[0], d)
				if err != nil {
					return err
				}
				if q == nil {
					fmt.Printf("%s %s: no price available\n", strings.ToUpper(args[0]), d)
					continue
				}
				fmt.Printf("%s %s: %.2f (close of %s)\n", strings.ToUpper(args[0]), d, q.Price, q.Date.Format("2006-01-02"))
			}
			return nil
		})
	},
}

// --- Recompute Command ---

var recomputeCmd = &cobra.Command{
	Use:   "recompute [ticker]",
	Short: "Re-resolve stored snapshots from their own tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		extra, _ := cmd.Flags().GetStringSlice("concept")
		return withApp(func(ctx context.Context, a *app) error {
			dates, err := snapshotDates(ctx, a, args[0], date)
			if err != nil {
				return err
			}
			for _, d := range dates {
				res, err := a.engine.Recompute(ctx, args[0], d, extra)
				if err != nil {
					return err
				}
				fmt.Printf("%s %s: %d ratios, %d concepts missing\n", res.Ticker, res.Date, len(res.Computed), len(res.Missing))
			}
			return nil
		})
	},
}

// --- Show Command ---

var showCmd = &cobra.Command{
	Use:   "show [ticker]",
	Short: "Print a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		return withApp(func(ctx context.Context, a *app) error {
			dates, err := snapshotDates(ctx, a, args[0], date)
			if err != nil {
				return err
			}
			for _, d := range dates {
				key, err := store.ParseKey(args[0], d)
				if err != nil {
					return err
				}
				snap, err := a.store.Get(ctx, key)
				if err != nil {
					return err
				}
				fmt.Println(report.SnapshotMarkdown(snap))
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{priceCmd, recomputeCmd, showCmd} {
		c.Flags().String("date", "", "reporting date YYYY-MM-DD (default: every stored snapshot)")
	}
	recomputeCmd.Flags().StringSlice("concept", nil, "additional concepts to resolve")
}

// snapshotDates returns date, or every stored date of ticker when empty.
func snapshotDates(ctx context.Context, a *app, ticker, date string) ([]string, error) {
	if date != "" {
		return []string{date}, nil
	}
	snaps, err := a.store.History(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("no snapshots stored for %s: %w", strings.ToUpper(ticker), store.ErrNotFound)
	}
	dates := make([]string, len(snaps))
	for i, s := range snaps {
		dates[i] = s.Date
	}
	return dates, nil
}

// --- Check Command ---

var checkCmd = &cobra.Command{
	Use:   "check [ticker]",
	Short: "Run integrity checks over stored snapshots",
	Long: `check runs the balance sheet integrity checks on every stored snapshot
of a ticker and flags base values that moved more than --threshold percent
since the snapshot reported about one year earlier.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		return withApp(func(ctx context.Context, a *app) error {
			snaps, err := a.store.History(ctx, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tCHECK\tDETAIL")
			issues := 0
			for i, snap := range snaps {
				base := calc.Base(snap.Base)
				findings := validate.Integrity(base, validate.DefaultTolerance)
				if prev := yearAgo(snaps[:i], snap); prev != nil {
					findings = append(findings, validate.Changes(base, calc.Base(prev.Base), threshold)...)
				}
				for _, f := range findings {
					fmt.Fprintf(w, "%s\t%s\t%s\n", snap.Date, f.Check, f.Message)
					issues++
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("%d snapshots checked, %d issues\n", len(snaps), issues)
			return nil
		})
	},
}

func init() {
	checkCmd.Flags().Float64("threshold", 100, "flag period-over-period changes above this percentage")
}

// yearAgo returns the latest of earlier whose reporting date lies one year,
// give or take a week, before snap's. earlier is sorted by date.
func yearAgo(earlier []*models.Snapshot, snap *models.Snapshot) *models.Snapshot {
	at, err := snap.ReportDate()
	if err != nil {
		return nil
	}
	target := at.AddDate(-1, 0, 0)
	for i := len(earlier) - 1; i >= 0; i-- {
		d, err := earlier[i].ReportDate()
		if err != nil {
			continue
		}
		if gap := d.Sub(target); gap <= 7*24*time.Hour && gap >= -7*24*time.Hour {
			return earlier[i]
		}
	}
	return nil
}

// --- Series Command ---

var seriesCmd = &cobra.Command{
	Use:   "series [ticker]",
	Short: "Print variables over time as a Markdown (or HTML) table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, _ := cmd.Flags().GetStringSlice("var")
		asHTML, _ := cmd.Flags().GetBool("html")
		if len(vars) == 0 {
			vars = []string{calc.Assets}
		}
		return withApp(func(ctx context.Context, a *app) error {
			snaps, err := a.store.History(ctx, args[0])
			if err != nil {
				return err
			}
			series := make([]report.Series, 0, len(vars))
			for _, v := range vars {
				series = append(series, report.SeriesOf(snaps, v))
			}
			out := report.Markdown(strings.ToUpper(args[0]), series...)
			if asHTML {
				if out, err = report.HTML(out); err != nil {
					return err
				}
			}
			fmt.Print(out)
			return nil
		})
	},
}

func init() {
	seriesCmd.Flags().StringSlice("var", nil, "base concept or ratio name (repeatable, default total assets)")
	seriesCmd.Flags().Bool("html", false, "render HTML instead of Markdown")
}

// --- Tickers Command ---

var tickersCmd = &cobra.Command{
	Use:   "tickers",
	Short: "Manage the company registry",
}

var tickersRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the registry from SEC (and the index page, if configured)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.refreshRegistry(ctx); err != nil {
				return err
			}
			fmt.Printf("Registry saved: %d companies -> %s\n", a.registry.Len(), cfg.Data.RegistryPath)
			return nil
		})
	},
}

var tickersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TICKER\tCIK\tTITLE")
			for _, c := range a.registry.Companies() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.Ticker, c.CIK, c.Title)
			}
			return w.Flush()
		})
	},
}

var tickersStoredCmd = &cobra.Command{
	Use:   "stored",
	Short: "List the tickers with stored snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			tickers, err := a.store.Tickers(ctx)
			if err != nil {
				return err
			}
			for _, t := range tickers {
				fmt.Println(t)
			}
			return nil
		})
	},
}

func init() {
	tickersCmd.AddCommand(tickersRefreshCmd, tickersListCmd, tickersStoredCmd)
}

// --- Latest Command ---

var latestCmd = &cobra.Command{
	Use:   "latest [ticker]",
	Short: "List the newest filings from the EDGAR Atom feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		form, _ := cmd.Flags().GetString("form")
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(func(ctx context.Context, a *app) error {
			company, err := a.company(ctx, args[0])
			if err != nil {
				return err
			}
			filings, err := ingest.NewFeedClient(cfg.Edgar.UserAgent, "").Latest(ctx, company, form, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FORM\tFILED\tREPORT YEAR\tACCESSION")
			for _, f := range filings {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.FormType, f.FilingDate.Format("2006-01-02"),
					period.ReportYear(f.ReportDate, f.FilingDate), f.AccessionNumber)
			}
			return w.Flush()
		})
	},
}

func init() {
	latestCmd.Flags().String("form", "10-K", "form type")
	latestCmd.Flags().Int("limit", 5, "maximum filings")
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored snapshots and reports over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.API.Addr
		}
		return withApp(func(ctx context.Context, a *app) error {
			mux := http.NewServeMux()
			snapshot.NewHandler(a.store, a.registry).Register(mux)
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

			errc := make(chan error, 1)
			go func() {
				log.Info().Str("component", "cli").Str("addr", addr).Msg("API server starting")
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
}
