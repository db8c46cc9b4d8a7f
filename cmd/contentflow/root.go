package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph/emit"
	"github.com/dshills/contentflow/internal/config"
	"github.com/dshills/contentflow/internal/logging"
)

type rootOptions struct {
	configPath string
	trace      bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "contentflow",
		Short: "Resumable editorial content pipeline",
		Long: `contentflow drafts magazine editorials through a checkpointed stage pipeline:
curation, design, sourcing, drafting, enrichment, review with bounded revisions,
human approval and publishing. Threads suspended at approval are resumed later.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().WithConfigPath(opts.configPath).Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			opts.cfg, opts.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "contentflow.yaml", "configuration file")
	cmd.PersistentFlags().BoolVar(&opts.trace, "trace", false, "export engine events as OpenTelemetry spans to the log")

	cmd.AddCommand(
		newRunCmd(opts),
		newResumeCmd(opts),
		newStatusCmd(opts),
		newLogsCmd(opts),
		newSummaryCmd(opts),
		newServeMetricsCmd(opts),
	)
	return cmd
}

// open wires the application, installing a tracer provider first when
// --trace is set. The returned close function flushes spans and releases
// connections.
func (o *rootOptions) open(ctx context.Context) (*app, func(), error) {
	var (
		emitters []emit.Emitter
		shutdown = func(context.Context) error { return nil }
	)
	if o.trace {
		shutdown = setupTracing(o.logger)
		emitters = append(emitters, emit.NewOTelEmitter(otel.Tracer("contentflow")))
	}

	a, err := newApp(ctx, o.cfg, o.logger, emitters...)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}
	return a, func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("failed to flush traces", zap.Error(err))
		}
		if err := a.Close(); err != nil {
			o.logger.Warn("failed to close resources", zap.Error(err))
		}
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
