package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehr/omopexport/internal/domain/export"
	"github.com/ehr/omopexport/internal/platform/db"
	"github.com/ehr/omopexport/migrations"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Poll the queue and run export jobs one at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			releaseAfter, _ := cmd.Flags().GetDuration("release-after")
			ctx, stop := signalContext()
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				if releaseAfter > 0 {
					n, err := a.queue.Release(ctx, int(releaseAfter.Seconds()))
					if err != nil {
						return err
					}
					if n > 0 {
						a.logger.Warn().Int("released", n).Dur("older_than", releaseAfter).Msg("released stale queue claims")
					}
				}
				return a.newWorker().Start(ctx)
			})
		},
	}
	cmd.Flags().Duration("release-after", time.Hour, "Make claims older than this claimable again on start (0 disables)")
	return cmd
}

func enqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Create an export job and put its trigger on the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			triggeredBy, _ := cmd.Flags().GetString("triggered-by")
			fullRefresh, _ := cmd.Flags().GetBool("full-refresh")
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				job, err := a.svc.Submit(ctx, export.Trigger{
					TriggeredBy: export.TriggerSource(triggeredBy),
					FullRefresh: fullRefresh,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued export %s (triggered_by=%s, full_refresh=%t)\n",
					job.ID, job.TriggeredBy, job.FullRefresh)
				return nil
			})
		},
	}
	cmd.Flags().String("triggered-by", string(export.TriggerNightly), "Trigger source: nightly or manual")
	cmd.Flags().Bool("full-refresh", false, "Ignore stored high-water marks and export from the epoch floor")
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run queued export jobs until the queue is empty, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("max")
			ctx, stop := signalContext()
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				n, err := drain(ctx, a.newWorker(), limit)
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s).\n", n)
				return err
			})
		},
	}
	cmd.Flags().Int("max", 0, "Stop after this many jobs (0 means no limit)")
	return cmd
}

type onceRunner interface {
	RunOnce(ctx context.Context) (bool, error)
}

// drain claims and runs triggers until the queue is empty, limit is reached
// or ctx is cancelled.
func drain(ctx context.Context, w onceRunner, limit int) (int, error) {
	n := 0
	for limit <= 0 || n < limit {
		if ctx.Err() != nil {
			return n, nil
		}
		claimed, err := w.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !claimed {
			break
		}
		n++
	}
	return n, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
		c.Flags().String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR, then the built-in set)")
		cmd.AddCommand(c)
	}
	return cmd
}

// migrationSource picks the directory on disk when one is given, otherwise
// the migrations compiled into the binary.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, _, err := bootstrap()
	if err != nil {
		return err
	}
	if schema == "" {
		schema = cfg.DBSchema
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := cmd.Context()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2, MinConns: 0})
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := db.EnsureSchema(ctx, pool, schema, ""); err != nil {
		return err
	}
	return fn(ctx, db.NewFSMigrator(pool, migrationSource(dir)), schema)
}

func artifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect or clean up published export files",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the files stored for an export job",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				infos, err := a.publisher.Artifacts(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-60s %12s %s\n", "KEY", "BYTES", "LAST MODIFIED")
				for _, info := range infos {
					fmt.Fprintf(out, "%-60s %12d %s\n", info.Key, info.Size, info.LastModified.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove files left behind by a failed export job",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := jobFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				n, err := a.svc.PruneArtifacts(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) for export %s.\n", n, id)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{listCmd, pruneCmd} {
		c.Flags().String("job", "", "Export job id")
		c.MarkFlagRequired("job")
		cmd.AddCommand(c)
	}
	return cmd
}

func jobFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("job")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --job %q: %w", raw, err)
	}
	return id, nil
}
