package taskengine

import (
	"time"

	"github.com/andoriyu/gazpacho/internal/config"
	"github.com/andoriyu/gazpacho/internal/history"
)

// needsReset implements the reset decision of spec.md §4.4.2 step 3. A Full
// strategy always resets; an Incremental strategy resets when there is no
// prior ResetInfo, or either configured trigger (run count, elapsed
// duration) has fired.
func needsReset(strategy config.Strategy, info *history.ResetInfo, now time.Time) bool {
	incr, ok := strategy.(*config.IncrementalStrategy)
	if !ok {
		return true
	}
	if info == nil {
		return true
	}
	if incr.RunsBeforeReset != nil && info.Count >= int64(*incr.RunsBeforeReset) {
		return true
	}
	if incr.DurationBeforeReset != nil && now.Sub(info.ResetAt) >= *incr.DurationBeforeReset {
		return true
	}
	return false
}
