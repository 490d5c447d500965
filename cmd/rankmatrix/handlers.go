package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/seotools/rankmatrix/internal/config"
	"github.com/seotools/rankmatrix/internal/scheduler"
	"github.com/seotools/rankmatrix/internal/store"
	"github.com/seotools/rankmatrix/pkg/alert"
	"github.com/seotools/rankmatrix/pkg/ingest"
	"github.com/seotools/rankmatrix/pkg/matrix"
	"github.com/seotools/rankmatrix/pkg/server"
	"github.com/seotools/rankmatrix/pkg/view"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.NewSQLite(cfg.Database.Path)
}

func runImport(files []string, subject, date, delimiter string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := ingest.Options{
		SubjectID:      subject,
		Delimiter:      cfg.Ingest.DelimiterRune(),
		DefaultDate:    store.Day(time.Now()),
		DefaultCountry: cfg.Ingest.DefaultCountry,
	}
	switch delimiter {
	case "tab":
		opts.Delimiter = '\t'
	case "comma":
		opts.Delimiter = ','
	}
	if date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", date, err)
		}
		opts.DefaultDate = d
	}

	ctx := context.Background()
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}

		summary, err := ingest.Ingest(ctx, logger, f, opts, st)
		f.Close()
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}

		fmt.Printf("%s: %d processed (%d new, %d overwritten, %d skipped)\n",
			path, summary.Processed, summary.Inserted, summary.Overwritten, summary.Skipped)
	}
	return nil
}

func runMatrix(country, date string, subjects []string, filterName, sortName string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	builder := matrix.NewBuilder(st)

	if country == "" {
		country = cfg.Ingest.DefaultCountry
	}

	day := store.Day(time.Now())
	if date != "" {
		day, err = time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", date, err)
		}
	}

	if len(subjects) == 0 {
		subjects, err = st.SubjectsForCountry(ctx, country)
		if err != nil {
			return err
		}
	}

	m, err := builder.Build(ctx, day, country, subjects)
	if err != nil {
		return err
	}

	rows := view.Apply(m, subjects, view.ParseFilter(filterName), view.ParseSort(sortName))

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	printMatrix(os.Stdout, rows, subjects)
	return nil
}

// printMatrix renders rows as a table: one rank column per subject,
// annotated with the signed change since the previous observation.
func printMatrix(out *os.File, rows []matrix.Row, subjects []string) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "KEYWORD\tCOUNTRY\t%s\n", strings.Join(subjects, "\t"))

	for _, row := range rows {
		cells := make([]string, len(subjects))
		for i, id := range subjects {
			cells[i] = formatCell(row.Cells[id])
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", row.Keyword, row.Country, strings.Join(cells, "\t"))
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d rows\n", len(rows))
}

func formatCell(c matrix.Cell) string {
	switch {
	case c.Current == nil && c.Previous == nil:
		return "-"
	case c.Current == nil:
		return fmt.Sprintf("was #%d", *c.Previous)
	case c.Delta == nil:
		return fmt.Sprintf("#%d", *c.Current)
	default:
		return fmt.Sprintf("#%d (%+d)", *c.Current, *c.Delta)
	}
}

func runPrune(keepDays int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if keepDays == 0 {
		keepDays = cfg.Retention.KeepDays
	}
	if keepDays <= 0 {
		return fmt.Errorf("retention window not configured; pass --keep-days")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cutoff := store.Day(time.Now()).AddDate(0, 0, -keepDays)
	removed, err := st.DeleteBefore(context.Background(), cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d observations before %s\n", removed, cutoff.Format("2006-01-02"))
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if port == 0 {
		port = cfg.Server.Port
	}

	builder := matrix.NewBuilder(st)
	alertMgr := buildAlertManager(cfg)

	ingestDefaults := ingest.Options{
		Delimiter:      cfg.Ingest.DelimiterRune(),
		DefaultCountry: cfg.Ingest.DefaultCountry,
	}
	srv := server.New(st, builder, logger, ingestDefaults, port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepInterval, err := time.ParseDuration(cfg.Retention.SweepInterval)
	if err != nil {
		sweepInterval = 24 * time.Hour
	}
	sched := scheduler.New(st, builder, alertMgr, logger,
		sweepInterval, cfg.Retention.KeepDays, cfg.Alerts.DropThreshold)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errc:
		return err
	}
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier
	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}
	return alert.NewManager(notifiers)
}
