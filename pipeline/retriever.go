package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/tool"
)

// Defaults of the tool-backed retriever.
const (
	DefaultLimitPerTerm = 5
	DefaultMaxContexts  = 15
)

// ToolRetriever searches source material one term at a time through a tool
// (usually a tool.HTTPTool in front of the content search API).
//
// The tool receives {"query": term, "limit": n} and answers
// {"posts": [SourceContext...]}. Posts are deduplicated by post id and
// collection stops at MaxContexts.
type ToolRetriever struct {
	Tool         tool.Tool
	LimitPerTerm int
	MaxContexts  int
	Policy       graph.RetryPolicy
	Logger       *zap.Logger
}

// NewToolRetriever returns a ToolRetriever with default limits.
func NewToolRetriever(t tool.Tool, logger *zap.Logger) *ToolRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolRetriever{
		Tool:         t,
		LimitPerTerm: DefaultLimitPerTerm,
		MaxContexts:  DefaultMaxContexts,
		Policy:       graph.DefaultRetryPolicy(),
		Logger:       logger,
	}
}

// Retrieve implements Retriever. A failing term is skipped; the error is
// returned only when nothing at all was found.
func (r *ToolRetriever) Retrieve(ctx context.Context, terms []string) ([]SourceContext, []tool.Call, error) {
	var (
		calls   []tool.Call
		out     = []SourceContext{}
		seen    = make(map[string]bool)
		lastErr error
	)
	for _, term := range terms {
		if len(out) >= r.MaxContexts {
			break
		}
		input := map[string]interface{}{"query": term, "limit": r.LimitPerTerm}

		var resp map[string]interface{}
		err := graph.Retry(ctx, r.Policy, func(ctx context.Context) error {
			o, call, err := tool.Invoke(ctx, r.Tool, input)
			calls = append(calls, call)
			resp = o
			return err
		})
		if err != nil {
			r.Logger.Warn("source search failed", zap.String("term", term), zap.Error(err))
			lastErr = err
			continue
		}

		posts, err := decodePosts(resp)
		if err != nil {
			r.Logger.Warn("source search returned malformed posts", zap.String("term", term), zap.Error(err))
			lastErr = err
			continue
		}
		for _, p := range posts {
			if p.PostID == "" || seen[p.PostID] {
				continue
			}
			seen[p.PostID] = true
			out = append(out, p)
			if len(out) >= r.MaxContexts {
				break
			}
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, calls, lastErr
	}
	return out, calls, nil
}

func decodePosts(resp map[string]interface{}) ([]SourceContext, error) {
	raw, ok := resp["posts"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var posts []SourceContext
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return posts, nil
}
