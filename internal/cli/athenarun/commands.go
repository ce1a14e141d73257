package athenarun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sayan-gitkid/sample-aws-tests/internal/dataset"
	"github.com/sayan-gitkid/sample-aws-tests/internal/history"
	"github.com/sayan-gitkid/sample-aws-tests/internal/migrations"
	"github.com/sayan-gitkid/sample-aws-tests/internal/query"
	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

func newStageCmd(a *app) *cobra.Command {
	var csvPath, target string
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Write the sample dataset, or a CSV file, to S3 as gzip parquet",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := storage.ParseLocation(target)
			if err != nil {
				return &usageError{err: fmt.Errorf("--target: %w", err)}
			}
			ds, err := loadDataset(csvPath)
			if err != nil {
				return err
			}
			info, err := a.stage(cmd.Context(), ds, loc)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "staged %s (%d bytes, %d rows)\n", info.Location, info.Size, ds.NumRows())
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "comma-delimited file with a header row; the sample dataset is used when empty")
	cmd.Flags().StringVar(&target, "target", "", "s3://bucket/key of the parquet object")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	var fetch bool
	var file string
	cmd := &cobra.Command{
		Use:   "query [sql...]",
		Short: "Run statements in order and print each execution id and result path",
		Args: usageArgs(func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && file == "" {
				return fmt.Errorf("at least one statement or --file is required")
			}
			return nil
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			statements := append([]string{}, args...)
			if file != "" {
				body, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read sql file: %w", err)
				}
				statements = append(statements, splitStatements(string(body))...)
			}

			runner, err := a.runner(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := runner.RunSequence(cmd.Context(), statements)
			for _, id := range ids {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, runner.ResultPath(id))
			}
			if err != nil {
				return err
			}
			if !fetch || len(ids) == 0 {
				return nil
			}
			ds, err := runner.FetchResult(cmd.Context(), ids[len(ids)-1])
			if err != nil {
				return err
			}
			return dataset.WriteCSV(cmd.OutOrStdout(), ds)
		},
	}
	cmd.Flags().BoolVar(&fetch, "fetch", false, "print the CSV result of the last statement")
	cmd.Flags().StringVar(&file, "file", "", "read ;-separated statements from a file")
	return cmd
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <execution-id>",
		Short: "Print the CSV result of a succeeded execution",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := a.runner(cmd.Context())
			if err != nil {
				return err
			}
			ds, err := runner.FetchResult(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return dataset.WriteCSV(cmd.OutOrStdout(), ds)
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	var staged bool
	cmd := &cobra.Command{
		Use:   "history [execution-id]",
		Short: "List recorded executions, or show one",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.historyRepo(cmd.Context())
			if err != nil {
				return err
			}
			if repo == nil {
				return fmt.Errorf("ATHENARUN_HISTORY_DSN is not set")
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer func() { _ = tw.Flush() }()

			if staged {
				objects, err := repo.ListStaged(cmd.Context(), limit)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(tw, "LOCATION\tBYTES\tROWS\tSTAGED AT")
				for _, object := range objects {
					_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", object.Location, object.SizeBytes, object.Rows, object.StagedAt.Format(time.RFC3339))
				}
				return nil
			}

			var executions []query.Execution
			if len(args) == 1 {
				exec, err := repo.GetExecution(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				executions = append(executions, exec)
			} else {
				executions, err = repo.ListExecutions(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintln(tw, "EXECUTION ID\tSTATE\tATTEMPTS\tSUBMITTED AT\tSQL")
			for _, exec := range executions {
				state := string(exec.State)
				switch {
				case !exec.FinishedAt.IsZero() && !exec.State.IsTerminal():
					state = "ABANDONED"
					if exec.State != "" {
						state += " (" + string(exec.State) + ")"
					}
				case state == "":
					state = "SUBMITTED"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", exec.ID, state, exec.Attempts, exec.SubmittedAt.Format(time.RFC3339), oneLine(exec.SQL, 60))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultListLimit, "maximum rows to list")
	cmd.Flags().BoolVar(&staged, "staged", false, "list staged objects instead of executions")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or roll back the history schema",
		Args:      usageArgs(cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs)),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			runner := migrations.NewRunner()
			out := cmd.OutOrStdout()

			switch direction {
			case "down":
				count, err := runner.Down(cmd.Context(), db, steps)
				if err != nil {
					return err
				}
				a.logger.Info("migrations rolled back", slog.Int("count", count))
				_, _ = fmt.Fprintf(out, "rolled back %d migration(s)\n", count)
			case "status":
				statuses, err := runner.Status(cmd.Context(), db)
				if err != nil {
					return err
				}
				for _, status := range statuses {
					mark := "pending"
					if status.Applied {
						mark = "applied"
					}
					_, _ = fmt.Fprintf(out, "%06d\t%s\t%s\n", status.Version, status.Name, mark)
				}
			default:
				count, err := runner.Up(cmd.Context(), db, steps)
				if err != nil {
					return err
				}
				a.logger.Info("migrations applied", slog.Int("count", count))
				_, _ = fmt.Fprintf(out, "applied %d migration(s)\n", count)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply (0 = all) or roll back (0 = 1)")
	return cmd
}

func (a *app) stage(ctx context.Context, ds dataset.Dataset, target storage.Location) (storage.ObjectInfo, error) {
	s, err := a.stager()
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.Stage(ctx, ds, target)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	repo, err := a.historyRepo(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "history unavailable", slog.Any("error", err))
		return info, nil
	}
	if repo != nil {
		if err := repo.RecordStaged(ctx, history.StagedObject{
			Location:  target.String(),
			SizeBytes: info.Size,
			ETag:      info.ETag,
			Columns:   len(ds.Columns),
			Rows:      int64(ds.NumRows()),
		}); err != nil {
			a.logger.WarnContext(ctx, "record staged object failed", slog.Any("error", err))
		}
	}
	return info, nil
}

func loadDataset(csvPath string) (dataset.Dataset, error) {
	if strings.TrimSpace(csvPath) == "" {
		return dataset.Sample(), nil
	}
	return dataset.LoadCSV(csvPath)
}

// splitStatements splits on semicolons outside single-quoted literals.
func splitStatements(body string) []string {
	var (
		statements []string
		current    strings.Builder
		quoted     bool
	)
	flush := func() {
		if statement := strings.TrimSpace(current.String()); statement != "" {
			statements = append(statements, statement)
		}
		current.Reset()
	}
	for _, r := range body {
		switch {
		case r == '\'':
			quoted = !quoted
			current.WriteRune(r)
		case r == ';' && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return statements
}

// oneLine collapses whitespace and cuts value to width runes.
func oneLine(value string, width int) string {
	runes := []rune(strings.Join(strings.Fields(value), " "))
	if len(runes) <= width {
		return string(runes)
	}
	return string(runes[:width-3]) + "..."
}
