// Package perf logs gateway updates that take longer than a threshold to
// ingest and dispatch.
package perf

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/small-frappuccino/eventcore/pkg/log"
)

// DefaultThreshold is used until SetThreshold is called.
const DefaultThreshold = 200 * time.Millisecond

var threshold atomic.Int64

func init() {
	threshold.Store(int64(DefaultThreshold))
}

// SetThreshold changes the slow-update threshold. Zero or negative disables
// the check.
func SetThreshold(d time.Duration) {
	threshold.Store(int64(d))
}

// Threshold returns the current slow-update threshold.
func Threshold() time.Duration {
	return time.Duration(threshold.Load())
}

// StartGatewayEvent tracks how long a gateway update takes and logs only
// when slow. Call the returned function when the update is done.
func StartGatewayEvent(event string, attrs ...slog.Attr) func() {
	limit := Threshold()
	if limit <= 0 {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		if duration < limit {
			return
		}
		name := strings.TrimSpace(event)
		if name == "" {
			name = "unknown"
		}
		args := make([]any, 0, len(attrs)+3)
		args = append(args,
			slog.String("event", name),
			slog.Duration("duration", duration),
			slog.Int64("duration_ms", duration.Milliseconds()),
		)
		for _, attr := range attrs {
			args = append(args, attr)
		}
		log.DiscordLogger().Warn("Slow gateway update", args...)
	}
}
