package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/mmk-dataport/config"
	"github.com/target/mmk-dataport/internal/bootstrap"
	"github.com/target/mmk-dataport/internal/domain/model"
	"github.com/target/mmk-dataport/internal/filterspec"
	"github.com/target/mmk-dataport/internal/service"
)

const defaultCommandTimeout = 2 * time.Minute

// jobClient is the subset of the job service the admin commands drive.
type jobClient interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.TransferJob, error)
	Dispatch(ctx context.Context, id string) error
	GetStatus(ctx context.Context, id, requester string) (*model.JobView, error)
	Cancel(ctx context.Context, id, requester string) (*model.JobView, error)
}

type jobLookup interface {
	GetByID(ctx context.Context, id string) (*model.TransferJob, error)
}

type resolverSource interface {
	Resolver(key string) (*filterspec.Resolver, error)
}

// session is an open connection to the job engine for the lifetime of one command.
type session struct {
	Jobs      jobClient
	Lookup    jobLookup
	Resolvers resolverSource
	ReapOnce  func(ctx context.Context) (service.SweepReport, error)
	close     func() error
}

func (s *session) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

type app struct {
	cfg     *config.AppConfig
	logger  *slog.Logger
	out     io.Writer
	timeout time.Duration

	openDB      func(ctx context.Context) (*sql.DB, error)
	openSession func(ctx context.Context) (*session, error)
}

func main() {
	logger := bootstrap.InitLogger()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	a := newApp(&cfg, logger, os.Stdout)
	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newApp(cfg *config.AppConfig, logger *slog.Logger, out io.Writer) *app {
	a := &app{cfg: cfg, logger: logger, out: out, timeout: defaultCommandTimeout}
	a.openDB = a.connectDB
	a.openSession = a.connectSession
	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dataport-admin",
		Short: "Operate the dataport transfer job engine",
		Long: `dataport-admin runs maintenance tasks against the dataport database and queue.

Examples:
  dataport-admin migrate
  dataport-admin create --resource artists --filter name__icontains=ringo
  dataport-admin status 5d3f0b9e-8a61-4c1e-b2f4-7e9a0c3d1b52
  dataport-admin reap-once`,
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", a.timeout, "overall deadline for the command")

	root.AddCommand(
		newMigrateCmd(a),
		newCreateCmd(a),
		newDispatchCmd(a),
		newStatusCmd(a),
		newCancelCmd(a),
		newReapOnceCmd(a),
	)
	return root
}

// withSession opens a session bounded by the command timeout and closes it after fn returns.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			a.logger.Warn("close session failed", "error", cerr)
		}
	}()
	return fn(ctx, s)
}

func (a *app) connectDB(ctx context.Context) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(ctx, a.cfg.Postgres, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func (a *app) connectSession(ctx context.Context) (*session, error) {
	infra, err := bootstrap.OpenInfra(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	services, err := infra.Services(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, errors.Join(err, infra.Close())
	}
	reaperRunner, err := bootstrap.NewReaperRunner(bootstrap.ReaperConfig{
		DB:       infra.DB,
		Config:   a.cfg.Reaper,
		Services: services,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, errors.Join(err, infra.Close())
	}

	return &session{
		Jobs:      services.Jobs,
		Lookup:    services.Repo,
		Resolvers: services.Resources,
		ReapOnce:  reaperRunner.RunOnce,
		close:     infra.Close,
	}, nil
}
