package main

import "github.com/urfave/cli/v3"

func envCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "Environment diagnostics",
		Commands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "Report required and optional variables, failing when a required one is missing",
				Action: r.EnvCheck,
			},
		},
	}
}

func webhookCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "webhook",
		Usage: "Creative analysis workflow",
		Commands: []*cli.Command{
			{
				Name:  "ping",
				Usage: "POST a ping payload to the analysis webhook",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "Webhook URL, defaults to N8N_ANALYSIS_WEBHOOK_URL",
					},
				},
				Action: r.WebhookPing,
			},
		},
	}
}

func stripeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stripe",
		Usage: "Billing catalogue maintenance",
		Commands: []*cli.Command{
			{
				Name:  "cleanup",
				Usage: "Archive active products whose prices are not in use",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "List the products without archiving them",
					},
					&cli.StringSliceFlag{
						Name:  "keep",
						Usage: "Price ids to keep, defaults to the configured plan prices",
					},
				},
				Action: r.StripeCleanup,
			},
		},
	}
}

func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Schema migrations",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending migrations",
				Action: r.DBMigrate,
			},
			{
				Name:   "status",
				Usage:  "Show the applied migration version",
				Action: r.DBStatus,
			},
		},
	}
}
