// Package athenarun implements the athenarun command tree.
package athenarun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sayan-gitkid/sample-aws-tests/internal/config"
	"github.com/sayan-gitkid/sample-aws-tests/internal/history"
	historypg "github.com/sayan-gitkid/sample-aws-tests/internal/history/postgres"
	"github.com/sayan-gitkid/sample-aws-tests/internal/observability"
	"github.com/sayan-gitkid/sample-aws-tests/internal/query"
	"github.com/sayan-gitkid/sample-aws-tests/internal/query/athena"
	"github.com/sayan-gitkid/sample-aws-tests/internal/query/duckdb"
	"github.com/sayan-gitkid/sample-aws-tests/internal/stager"
	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
	s3store "github.com/sayan-gitkid/sample-aws-tests/internal/storage/s3"
)

// Options carries process wiring. Store, Service, History and OpenDB replace
// the configured backends when set.
type Options struct {
	Lookup  config.LookupFunc
	Stdout  io.Writer
	Stderr  io.Writer
	Store   storage.ObjectStore
	Service query.Service
	History history.Repository
	OpenDB  func(ctx context.Context) (*sql.DB, error)
	Sleep   func(ctx context.Context, d time.Duration) error
}

// Run executes args and returns the process exit code: 0 on success, 1 on a
// failed operation and 2 on a usage error.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	a := &app{opts: opts}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) || isCobraUsageError(err) {
			return 2
		}
		return 1
	}
	return 0
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "required flag")
}

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

type overrides struct {
	engine         string
	database       string
	outputLocation string
	workGroup      string
	metricsAddr    string
}

// app resolves configuration once per invocation and builds backends on
// first use.
type app struct {
	opts   Options
	flags  overrides
	cfg    config.Config
	logger *slog.Logger

	store   storage.ObjectStore
	service query.Service
	repo    history.Repository
	db      *sql.DB
	closers []func() error
	cancel  context.CancelFunc
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "athenarun",
		Short:         "Stage datasets to S3 and run Athena queries against them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.flags.engine, "engine", "", "query engine: athena or duckdb (overrides ATHENARUN_QUERY_ENGINE)")
	flags.StringVar(&a.flags.database, "database", "", "database for submitted statements")
	flags.StringVar(&a.flags.outputLocation, "output-location", "", "s3:// prefix, ending in /, that receives result CSVs")
	flags.StringVar(&a.flags.workGroup, "workgroup", "", "Athena workgroup")
	flags.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(newStageCmd(a))
	root.AddCommand(newQueryCmd(a))
	root.AddCommand(newFetchCmd(a))
	root.AddCommand(newDemoCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newMigrateCmd(a))
	return root
}

func (a *app) init(ctx context.Context) error {
	lookup := a.opts.Lookup
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	cfg, err := config.Load("athenarun", lookup)
	if err != nil {
		return err
	}
	if a.flags.engine != "" {
		cfg.Query.Engine = a.flags.engine
	}
	if a.flags.database != "" {
		cfg.Athena.Database = a.flags.database
	}
	if a.flags.outputLocation != "" {
		cfg.Athena.OutputLocation = a.flags.outputLocation
	}
	if a.flags.workGroup != "" {
		cfg.Athena.WorkGroup = a.flags.workGroup
	}
	if a.flags.metricsAddr != "" {
		cfg.Metrics.Address = a.flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{err: err}
	}

	a.cfg = cfg
	a.logger = observability.NewLogger(cfg, a.opts.Stderr)

	if addr := strings.TrimSpace(cfg.Metrics.Address); addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.cancel = cancel
		go func() {
			if err := observability.ServeMetrics(metricsCtx, addr, a.logger); err != nil {
				a.logger.Error("metrics listener stopped", slog.Any("error", err))
			}
		}()
	}
	return nil
}

func (a *app) close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close resource failed", slog.Any("error", err))
		}
	}
}

func (a *app) objectStore() (storage.ObjectStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if a.opts.Store != nil {
		a.store = a.opts.Store
		return a.store, nil
	}
	store, err := s3store.New(s3store.Config{
		Endpoint:         a.cfg.ObjectStore.Endpoint,
		Region:           a.cfg.ObjectStore.Region,
		AccessKeyID:      a.cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  a.cfg.ObjectStore.SecretAccessKey,
		UseSSL:           a.cfg.ObjectStore.UseSSL,
		Prefix:           a.cfg.ObjectStore.Prefix,
		AutoCreateBucket: a.cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, err
	}
	a.store = store
	return a.store, nil
}

func (a *app) queryService(ctx context.Context) (query.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	if a.opts.Service != nil {
		a.service = a.opts.Service
		return a.service, nil
	}

	switch a.cfg.Query.Engine {
	case config.EngineDuckDB:
		store, err := a.objectStore()
		if err != nil {
			return nil, err
		}
		engine := duckdb.NewEngine(store, a.logger)
		a.closers = append(a.closers, engine.Close)
		a.service = engine
	default:
		svc, err := athena.New(ctx, athena.Options{Region: a.cfg.Athena.Region})
		if err != nil {
			return nil, err
		}
		a.service = svc
	}
	return a.service, nil
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	if a.opts.OpenDB != nil {
		db, err := a.opts.OpenDB(ctx)
		if err != nil {
			return nil, err
		}
		a.db = db
		return db, nil
	}
	if strings.TrimSpace(a.cfg.History.DSN) == "" {
		return nil, fmt.Errorf("ATHENARUN_HISTORY_DSN is not set")
	}
	db, err := historypg.Open(ctx, historypg.DBConfig{
		DSN:             a.cfg.History.DSN,
		MaxOpenConns:    a.cfg.History.MaxOpenConns,
		MaxIdleConns:    a.cfg.History.MaxIdleConns,
		ConnMaxIdleTime: a.cfg.History.ConnMaxIdleTime,
		ConnMaxLifetime: a.cfg.History.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	a.db = db
	return db, nil
}

// historyRepo returns nil without error when no history database is
// configured; recording is optional for stage and query.
func (a *app) historyRepo(ctx context.Context) (history.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	if a.opts.History != nil {
		a.repo = a.opts.History
		return a.repo, nil
	}
	if a.opts.OpenDB == nil && strings.TrimSpace(a.cfg.History.DSN) == "" {
		return nil, nil
	}
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	a.repo = historypg.NewRepository(db)
	return a.repo, nil
}

func (a *app) runner(ctx context.Context) (*query.Runner, error) {
	svc, err := a.queryService(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.objectStore()
	if err != nil {
		return nil, err
	}
	repo, err := a.historyRepo(ctx)
	if err != nil {
		return nil, err
	}

	r := &query.Runner{
		Service: svc,
		Store:   store,
		Config: query.Config{
			Database:       a.cfg.Athena.Database,
			OutputLocation: a.cfg.Athena.OutputLocation,
			WorkGroup:      a.cfg.Athena.WorkGroup,
			PollInterval:   a.cfg.Query.PollInterval,
			MaxAttempts:    a.cfg.Query.MaxAttempts,
			Timeout:        a.cfg.Query.Timeout,
		},
		Logger: a.logger,
		Sleep:  a.opts.Sleep,
	}
	if repo != nil {
		r.Recorder = repo
	}
	return r, nil
}

func (a *app) stager() (*stager.Stager, error) {
	store, err := a.objectStore()
	if err != nil {
		return nil, err
	}
	return &stager.Stager{Store: store, Logger: a.logger}, nil
}
