package telemetry

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("repeatbot.process_stats")
var rssGauge, _ = meter.Int64Gauge("browser.rss_mb")
var childrenGauge, _ = meter.Int64Gauge("browser.processes")

type ProcessStats struct {
	RSSMegabytes int64
	Processes    int
}

// RecordProcessStats samples the memory of a browser process tree (the
// main process and its renderers) and records it on the gauges. It returns
// the zero value when pid is 0 or no longer running.
func RecordProcessStats(ctx context.Context, pid int) ProcessStats {
	if pid <= 0 {
		return ProcessStats{}
	}
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		slog.DebugContext(ctx, "failed to inspect browser process", "pid", pid, "err", err)
		return ProcessStats{}
	}

	stats := ProcessStats{}
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		stats.Processes++

		mem, err := p.MemoryInfoWithContext(ctx)
		if err == nil {
			stats.RSSMegabytes += int64(mem.RSS / 1_000_000)
		}
		children, err := p.ChildrenWithContext(ctx)
		if err == nil {
			queue = append(queue, children...)
		}
	}

	attrs := metric.WithAttributes(attribute.Int("pid", pid))
	rssGauge.Record(ctx, stats.RSSMegabytes, attrs)
	childrenGauge.Record(ctx, int64(stats.Processes), attrs)
	return stats
}
