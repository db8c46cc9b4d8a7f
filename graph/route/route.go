// Package route resolves pipeline stages to execution tiers.
//
// A Router is built from a declarative table that gives every stage a
// default tier and, optionally, an upgrade tier used once the thread's
// revision count reaches a threshold. Resolution is pure and total: stages
// missing from the table resolve to the global default tier.
package route

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Resolution reasons.
const (
	ReasonDefault  = "default"
	ReasonFallback = "fallback"
)

//go:embed routing.yaml
var defaultTable []byte

// Table is the YAML routing table.
type Table struct {
	Defaults struct {
		Tier string `yaml:"tier"`
	} `yaml:"defaults"`
	Stages map[string]StageRoute `yaml:"stages"`
}

// StageRoute is the routing entry of one stage.
type StageRoute struct {
	DefaultTier string `yaml:"default_tier"`
	UpgradeTier string `yaml:"upgrade_tier,omitempty"`
	Upgrade     struct {
		MinRevisionCount *int `yaml:"min_revision_count,omitempty"`
	} `yaml:"upgrade,omitempty"`
}

// Resolution is the tier chosen for one stage invocation and why.
type Resolution struct {
	Tier   string `json:"tier"`
	Reason string `json:"reason"`
}

// Router resolves (stage, revision count) to a Resolution. It is immutable
// after construction and safe for concurrent use.
type Router struct {
	fallback string
	stages   map[string]StageRoute
}

// New builds a Router from t.
func New(t Table) (*Router, error) {
	if t.Defaults.Tier == "" {
		return nil, fmt.Errorf("routing table: defaults.tier is required")
	}
	stages := make(map[string]StageRoute, len(t.Stages))
	for name, r := range t.Stages {
		if r.DefaultTier == "" {
			return nil, fmt.Errorf("routing table: stage %q has no default_tier", name)
		}
		if n := r.Upgrade.MinRevisionCount; n != nil && *n < 0 {
			return nil, fmt.Errorf("routing table: stage %q has negative min_revision_count", name)
		}
		stages[name] = r
	}
	return &Router{fallback: t.Defaults.Tier, stages: stages}, nil
}

// Parse builds a Router from YAML.
func Parse(data []byte) (*Router, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse routing table: %w", err)
	}
	return New(t)
}

// Load reads a routing table from path. An empty path loads the embedded
// default table.
func Load(path string) (*Router, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing table: %w", err)
	}
	return Parse(data)
}

// Default returns a Router over the embedded table.
func Default() *Router {
	r, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded routing table is invalid: %v", err))
	}
	return r
}

// Resolve picks the tier for stage at the given revision count.
func (r *Router) Resolve(stage string, revisionCount int) Resolution {
	route, ok := r.stages[stage]
	if !ok {
		return Resolution{Tier: r.fallback, Reason: ReasonFallback}
	}
	if threshold := route.Upgrade.MinRevisionCount; route.UpgradeTier != "" && threshold != nil && revisionCount >= *threshold {
		return Resolution{Tier: route.UpgradeTier, Reason: fmt.Sprintf("upgrade:revision>=%d", *threshold)}
	}
	return Resolution{Tier: route.DefaultTier, Reason: ReasonDefault}
}

// FallbackTier is the tier used for stages missing from the table.
func (r *Router) FallbackTier() string {
	return r.fallback
}

// Stages lists the stages with an explicit route, sorted.
func (r *Router) Stages() []string {
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
