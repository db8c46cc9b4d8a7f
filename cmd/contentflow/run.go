package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/store"
	"github.com/dshills/contentflow/pipeline"
)

// outcome is what the CLI prints for a thread after Run or Resume.
type outcome struct {
	ThreadID  string           `json:"thread_id"`
	Status    pipeline.Status  `json:"status,omitempty"`
	Step      int              `json:"step"`
	Done      bool             `json:"done"`
	Interrupt *store.Interrupt `json:"interrupt,omitempty"`
	Revisions int              `json:"revision_count"`
	Errors    []string         `json:"error_log,omitempty"`
	Err       string           `json:"error,omitempty"`
}

func outcomeOf(res graph.Result[pipeline.State], err error) outcome {
	o := outcome{
		ThreadID:  res.ThreadID,
		Status:    res.State.Status,
		Step:      res.Step,
		Done:      res.Done,
		Interrupt: res.Interrupt,
		Revisions: res.State.RevisionCount,
		Errors:    res.State.ErrorLog,
	}
	if err != nil {
		o.Err = err.Error()
	}
	return o
}

type runOptions struct {
	keyword  string
	category string
	mode     string
	threadID string
	batch    string
	parallel int
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start or continue pipeline threads",
		Long: `Start a thread for --keyword, or one thread per line of --batch.

An existing --thread is continued from its last checkpoint: a thread that
failed mid-stage picks up at that stage, and a thread waiting for approval
re-runs the approval stage and suspends again.`,
		Example: `  contentflow run --keyword "linen summer"
  contentflow run --batch keywords.txt --parallel 4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inputs, err := opts.inputs()
			if err != nil {
				return err
			}
			a, closeApp, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			return runThreads(cmd.Context(), a, inputs, opts.parallel, func(o outcome) error {
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.keyword, "keyword", "k", "", "seed keyword")
	cmd.Flags().StringVar(&opts.category, "category", "", "content category hint")
	cmd.Flags().StringVar(&opts.mode, "mode", "", `curation mode ("db_source" skips curation when topics are supplied)`)
	cmd.Flags().StringVarP(&opts.threadID, "thread", "t", "", "thread id (default: a new UUID)")
	cmd.Flags().StringVar(&opts.batch, "batch", "", "file with one keyword per line")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 4, "threads run concurrently with --batch")
	return cmd
}

type threadInput struct {
	threadID string
	input    pipeline.CurationInput
}

func (o *runOptions) inputs() ([]threadInput, error) {
	if o.batch == "" {
		if o.keyword == "" && o.threadID == "" {
			return nil, errors.New("either --keyword, --thread or --batch is required")
		}
		id := o.threadID
		if id == "" {
			id = uuid.NewString()
		}
		return []threadInput{{threadID: id, input: pipeline.CurationInput{Keyword: o.keyword, Category: o.category, Mode: o.mode}}}, nil
	}

	f, err := os.Open(o.batch)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()

	var out []threadInput
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		kw := strings.TrimSpace(sc.Text())
		if kw == "" || strings.HasPrefix(kw, "#") {
			continue
		}
		out = append(out, threadInput{threadID: uuid.NewString(), input: pipeline.CurationInput{Keyword: kw, Category: o.category, Mode: o.mode}})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return out, nil
}

// runThreads drives every input to its next suspension or end, at most
// parallel at a time. A failing thread does not stop the others; the
// returned error reports how many failed.
func runThreads(ctx context.Context, a *app, inputs []threadInput, parallel int, report func(outcome) error) error {
	if parallel < 1 {
		parallel = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	var (
		mu     sync.Mutex
		failed int
	)
	for _, in := range inputs {
		g.Go(func() error {
			res, err := pipeline.Start(ctx, a.engine, in.threadID, in.input)
			if res.ThreadID == "" {
				res.ThreadID = in.threadID
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				a.logger.Error("thread failed", zap.String("thread_id", in.threadID), zap.Error(err))
			}
			return report(outcomeOf(res, err))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d threads failed", failed, len(inputs))
	}
	return nil
}
