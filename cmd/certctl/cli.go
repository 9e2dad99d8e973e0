package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"certledger/internal/app"
	"certledger/internal/config"
	"certledger/internal/domain"
	"certledger/internal/infra/auth/session"
	"certledger/internal/infra/db"
	"certledger/internal/logging"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "certctl",
		Usage: "operate the certificate revocation ledger",
		Commands: []*cli.Command{
			migrateCommand(),
			reconcileCommand(),
			reportCommand(),
			batchRevokeCommand(),
			tokenCommand(),
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create or update the database schema",
		Action: func(c *cli.Context) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN, false)
			if err != nil {
				return err
			}
			store := db.NewStoreFromDB(gdb)
			defer store.Close()
			if err := store.Migrate(c.Context); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "migrated %s database\n", cfg.DBDriver)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "run one sync sweep between the database and the ledger",
		Action: func(c *cli.Context) error {
			return withApp(c, func(a *app.App) error {
				outcomes, err := a.Reconciler.Reconcile(c.Context)
				if err != nil {
					return err
				}
				return writeJSON(c.App.Writer, outcomes)
			})
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "aggregate revocation activity for a date range",
		Flags: []cli.Flag{
			&cli.TimestampFlag{Name: "start", Layout: domain.ReportDateLayout, Timezone: time.UTC, Required: true},
			&cli.TimestampFlag{Name: "end", Layout: domain.ReportDateLayout, Timezone: time.UTC, Required: true},
		},
		Action: func(c *cli.Context) error {
			start, end := c.Timestamp("start"), c.Timestamp("end")
			if start == nil || end == nil {
				return errors.New("--start and --end are required")
			}
			// --end names a whole day.
			endOfDay := end.Add(24*time.Hour - time.Nanosecond)
			return withApp(c, func(a *app.App) error {
				report, err := a.Reports.Generate(c.Context, *start, endOfDay)
				if err != nil {
					return err
				}
				return writeJSON(c.App.Writer, report)
			})
		},
	}
}

type batchFileEntry struct {
	CertificateID int64  `json:"certificateId"`
	Reason        string `json:"reason"`
}

func batchRevokeCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch-revoke",
		Usage: "revoke the certificates listed in a JSON file",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "file", Aliases: []string{"f"}, Usage: `JSON array of {"certificateId", "reason"}`, Required: true},
			&cli.Int64Flag{Name: "admin-id", Required: true},
		},
		Action: func(c *cli.Context) error {
			entries, err := readBatchFile(c.Path("file"))
			if err != nil {
				return err
			}
			adminID := c.Int64("admin-id")
			if adminID <= 0 {
				return errors.New("--admin-id must be positive")
			}
			requests := make([]domain.RevocationRequest, 0, len(entries))
			for _, e := range entries {
				requests = append(requests, domain.RevocationRequest{
					CertificateID: e.CertificateID,
					Reason:        e.Reason,
					AdminID:       adminID,
					Context:       domain.RequestContext{UserAgent: "certctl"},
				})
			}
			return withApp(c, func(a *app.App) error {
				result := a.Batch.Revoke(c.Context, requests)
				for i, r := range result.Results {
					status := "ok"
					if !r.Success {
						status = "failed"
					}
					fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\n", entries[i].CertificateID, status, r.Message)
				}
				fmt.Fprintf(c.App.Writer, "succeeded=%d failed=%d\n", result.Success, result.Failed)
				if result.Failed > 0 {
					return fmt.Errorf("%d of %d revocations failed", result.Failed, len(requests))
				}
				return nil
			})
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a session token for local testing",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "admin-id", Required: true},
			&cli.StringFlag{Name: "role", Value: string(domain.RoleAdmin)},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			auth, err := session.NewAuthenticator(cfg.SessionSecret, cfg.SessionIssuer)
			if err != nil {
				return err
			}
			role := domain.Role(c.String("role"))
			if role != domain.RoleAdmin && role != domain.RoleIssuer {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.Issue(domain.Principal{ActorID: c.Int64("admin-id"), Role: role}, c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func withApp(c *cli.Context, fn func(*app.App) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close resources", zap.Error(err))
		}
	}()
	return fn(a)
}

func readBatchFile(path string) ([]batchFileEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var entries []batchFileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("batch file is empty")
	}
	for i, e := range entries {
		if e.CertificateID <= 0 {
			return nil, fmt.Errorf("entry %d: certificateId must be positive", i)
		}
	}
	return entries, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
