// Package maid is the scheduled cleanup collaborator (spec.md §4.6,
// component C7): a timer fires Cleanup ticks that identify artifacts
// eligible for pruning under each task's retention policy. The pruning
// algorithm itself — actually deleting destination files, local
// snapshots, or replacing them with bookmarks — is specified as a
// scheduled collaborator only and is out of scope for the core.
package maid

import (
	"sort"
	"time"

	"github.com/andoriyu/gazpacho/internal/config"
)

// Artifact is anything retention policy can judge: a destination file or
// a local snapshot, identified by name and creation time.
type Artifact struct {
	Name      string
	CreatedAt time.Time
}

// CandidatesForPruning evaluates rule against artifacts and returns those
// that fall outside retention, oldest first. It mirrors the teacher's
// KeepGrid idiom (partition into kept/destroy, then union the age and
// count criteria) simplified to the age/count pair spec.md's
// RetentionRule actually declares, rather than the deprecated multi-rung
// retention grid.
func CandidatesForPruning(rule *config.RetentionRule, artifacts []Artifact, now time.Time) []Artifact {
	if rule == nil || len(artifacts) == 0 {
		return nil
	}

	sorted := make([]Artifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	destroy := make(map[string]Artifact)

	if rule.Count != nil && *rule.Count < len(sorted) {
		for _, a := range sorted[*rule.Count:] {
			destroy[a.Name] = a
		}
	}
	if rule.Age != nil {
		cutoff := now.Add(-*rule.Age)
		for _, a := range sorted {
			if a.CreatedAt.Before(cutoff) {
				destroy[a.Name] = a
			}
		}
	}

	result := make([]Artifact, 0, len(destroy))
	for _, a := range destroy {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}
