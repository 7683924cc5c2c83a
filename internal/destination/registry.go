// Package destination implements the per-destination save pools (spec.md
// §4.2-§4.3, components C2/C3): local/SFTP sinks, optional streaming Zstd
// compression, and the registry that routes save requests and rebuilds its
// pools on configuration reload.
package destination

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/andoriyu/gazpacho/internal/config"
)

// Registry owns the set of destination agents. It is safe for concurrent
// Save calls; Rebuild is expected to be called only from the configuration
// reload path.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	log    *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{agents: make(map[string]*Agent), log: log}
}

// Rebuild computes the set of destinations referenced by at least one
// surviving task and constructs a fresh agent pool for each, discarding
// any previous pools. It logs a structured diff of the destination set
// against the previous configuration before swapping.
func (r *Registry) Rebuild(cfg *config.Config) {
	referenced := make(map[string]*config.Destination)
	for _, t := range cfg.Tasks {
		if d, ok := cfg.Destinations[t.DestinationName]; ok {
			referenced[d.Name] = d
		}
	}

	next := make(map[string]*Agent, len(referenced))
	for name, d := range referenced {
		next[name] = NewAgent(d, r.log.With(slog.String("destination", name)))
	}

	r.mu.Lock()
	r.logDiff(r.agents, next)
	r.agents = next
	r.mu.Unlock()
}

func (r *Registry) logDiff(prev, next map[string]*Agent) {
	prevNames := namesOf(prev)
	nextNames := namesOf(next)

	prevJSON, _ := json.Marshal(map[string][]string{"destinations": prevNames})
	nextJSON, _ := json.Marshal(map[string][]string{"destinations": nextNames})

	d, err := gojsondiff.New().Compare(prevJSON, nextJSON)
	if err != nil {
		r.log.Warn("destination registry diff failed", slog.Any("error", err))
		return
	}
	if !d.Modified() {
		return
	}

	var prevDoc map[string]any
	_ = json.Unmarshal(prevJSON, &prevDoc)
	f := formatter.NewDeltaFormatter()
	out, err := f.Format(d)
	if err != nil {
		r.log.Info("destination registry rebuilt", slog.Any("prev", prevNames), slog.Any("next", nextNames))
		return
	}
	r.log.Info("destination registry rebuilt", slog.String("diff", out))
}

func namesOf(m map[string]*Agent) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

// Save routes req to the named destination's agent.
func (r *Registry) Save(ctx context.Context, destination string, req SaveRequest) (int64, error) {
	r.mu.RLock()
	agent, ok := r.agents[destination]
	r.mu.RUnlock()
	if !ok {
		return 0, &UnknownDestinationError{Name: destination}
	}
	return agent.Save(ctx, req)
}
