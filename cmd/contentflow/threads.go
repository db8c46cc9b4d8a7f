package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/runlog"
	"github.com/dshills/contentflow/pipeline"
)

func newResumeCmd(root *rootOptions) *cobra.Command {
	var d pipeline.Decision
	cmd := &cobra.Command{
		Use:   "resume <thread-id>",
		Short: "Answer a thread waiting for approval",
		Example: `  contentflow resume 5f0c... --decision approved
  contentflow resume 5f0c... --decision revision_requested --feedback "Lead with the runway looks"
  contentflow resume 5f0c... --decision rejected --reason "Off brand"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch d.Decision {
			case pipeline.DecisionApproved, pipeline.DecisionRejected, pipeline.DecisionRevisionRequested:
			default:
				return fmt.Errorf("--decision must be approved, rejected or revision_requested, got %q", d.Decision)
			}
			a, closeApp, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			res, err := a.engine.Resume(cmd.Context(), args[0], graph.Command{Resume: d})
			if res.ThreadID == "" {
				res.ThreadID = args[0]
			}
			if perr := printJSON(cmd.OutOrStdout(), outcomeOf(res, err)); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&d.Decision, "decision", "d", "", "approved, rejected or revision_requested")
	cmd.Flags().StringVar(&d.Feedback, "feedback", "", "revision notes for the editor")
	cmd.Flags().StringVar(&d.Reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

// threadStatus is the printed view of a thread's latest checkpoint.
type threadStatus struct {
	Outcome outcome          `json:"outcome"`
	State   pipeline.State   `json:"state"`
	Record  *pipeline.Record `json:"record,omitempty"`
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <thread-id>",
		Short: "Show the latest checkpoint of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			res, err := a.engine.State(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("thread %s: %w", args[0], err)
			}
			out := threadStatus{Outcome: outcomeOf(res, nil), State: res.State}
			rec, err := a.records.ByThread(cmd.Context(), args[0])
			switch {
			case err == nil:
				out.Record = &rec
			case !errors.Is(err, pipeline.ErrRecordNotFound):
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newLogsCmd(root *rootOptions) *cobra.Command {
	var filter runlog.Filter
	var status string
	cmd := &cobra.Command{
		Use:   "logs <thread-id>",
		Short: "List the stage run logs of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			filter.Status = runlog.Status(status)
			logs, err := a.runlogs.List(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), logs)
		},
	}
	cmd.Flags().StringVar(&filter.Stage, "stage", "", "only this stage")
	cmd.Flags().StringVar(&status, "status", "", "only success, error or interrupted")
	return cmd
}

func newSummaryCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <thread-id>",
		Short: "Summarize duration, tokens and estimated cost of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			s, err := runlog.SummarizeStore(cmd.Context(), a.runlogs, args[0], runlog.DefaultPricing())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
}

func newServeMetricsCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve Prometheus metrics until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, closeApp, err := root.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp()

			if addr == "" {
				addr = a.cfg.Metrics.Addr
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			a.logger.Info("serving metrics", zap.String("addr", addr))

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: metrics.addr)")
	return cmd
}
