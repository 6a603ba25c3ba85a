package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/adlens/adlens/backend/billing"
	"github.com/adlens/adlens/backend/config"
	"github.com/adlens/adlens/backend/database"
	"github.com/adlens/adlens/backend/workflow"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds the dependencies shared by every command action.
type Runner struct {
	config     *config.Config
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client
	provider   func() (billing.Provider, error)
	migrate    func(databaseURL string) (bool, error)
	status     func(databaseURL string) (database.MigrationStatus, error)
}

type RunnerOpts struct {
	Config     *config.Config
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	Provider   func() (billing.Provider, error)
}

func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	r := &Runner{
		config:     opts.Config,
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
		provider:   opts.Provider,
		migrate:    database.Migrate,
		status:     database.Status,
	}
	if r.provider == nil {
		r.provider = r.stripeProvider
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range []func(*Runner) *cli.Command{envCommand, webhookCommand, stripeCommand, dbCommand} {
		commands = append(commands, fn(r))
	}
	return commands
}

func (r *Runner) writePlainln(format string, args ...any) {
	fmt.Fprintf(r.output, format+"\n", args...)
}

func (r *Runner) stripeProvider() (billing.Provider, error) {
	if !r.config.Stripe.Enabled() {
		return nil, billing.ErrNotConfigured
	}
	return billing.NewStripeProvider(r.config.Stripe.SecretKey, r.config.Stripe.WebhookSecret), nil
}

func (r *Runner) EnvCheck(ctx context.Context, cmd *cli.Command) error {
	var missing []string
	for _, s := range r.config.Report() {
		mark := "-"
		switch {
		case s.Set:
			mark = "✓"
		case s.Required:
			mark = "✗"
			missing = append(missing, s.Name)
		}

		kind := "optional"
		if s.Required {
			kind = "required"
		}
		r.writePlainln("%s %-34s %s", mark, s.Name, kind)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required variables: %s", strings.Join(missing, ", "))
	}
	r.logger.Info("environment ok")
	return nil
}

func (r *Runner) WebhookPing(ctx context.Context, cmd *cli.Command) error {
	url := cmd.String("url")
	if url == "" {
		url = r.config.Workflow.AnalysisURL
	}
	if url == "" {
		return fmt.Errorf("no webhook url: pass --url or set N8N_ANALYSIS_WEBHOOK_URL")
	}

	client := workflow.NewClient(url, r.config.Workflow.SharedSecret, r.config.Workflow.Timeout, r.httpClient)
	r.logger.Info("pinging analysis webhook", "url", url)

	status, elapsed, err := client.Ping(ctx)
	if status != 0 {
		r.writePlainln("status %d in %s", status, elapsed.Round(time.Millisecond))
	}
	if err != nil {
		return fmt.Errorf("webhook ping failed: %w", err)
	}
	return nil
}

func (r *Runner) StripeCleanup(ctx context.Context, cmd *cli.Command) error {
	provider, err := r.provider()
	if errors.Is(err, billing.ErrNotConfigured) {
		return fmt.Errorf("STRIPE_SECRET_KEY is not set")
	}
	if err != nil {
		return err
	}

	keep := cmd.StringSlice("keep")
	if len(keep) == 0 {
		keep = r.config.Stripe.ConfiguredPrices()
	}
	if len(keep) == 0 {
		return fmt.Errorf("refusing to archive every product: pass --keep or configure plan prices")
	}

	dryRun := cmd.Bool("dry-run")
	archived, err := billing.CleanupProducts(ctx, provider, keep, dryRun)
	for _, id := range archived {
		if dryRun {
			r.writePlainln("would archive %s", id)
		} else {
			r.writePlainln("archived %s", id)
		}
	}
	if err != nil {
		return fmt.Errorf("cleanup stopped after %d products: %w", len(archived), err)
	}

	r.logger.Info("stripe cleanup done", "products", len(archived), "dry_run", dryRun)
	return nil
}

func (r *Runner) DBMigrate(ctx context.Context, cmd *cli.Command) error {
	if r.config.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	changed, err := r.migrate(r.config.Database.URL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if changed {
		r.writePlainln("migrations applied")
	} else {
		r.writePlainln("schema already up to date")
	}
	return nil
}

func (r *Runner) DBStatus(ctx context.Context, cmd *cli.Command) error {
	if r.config.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	st, err := r.status(r.config.Database.URL)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if !st.Applied {
		r.writePlainln("no migrations applied")
		return nil
	}
	r.writePlainln("version %d (dirty: %t)", st.Version, st.Dirty)
	return nil
}
