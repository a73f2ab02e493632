// Package stats runs the periodic stats-reporter log line: store size,
// replication progress, and host CPU/memory/load sampled from the OS.
// It is log-only and has no effect on RESP behavior.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Source supplies the in-process figures a report line needs. ReplOffset
// reports this node's own repl_offset if it is a primary, or its ack
// offset if it is a replica.
type Source struct {
	KeyCount     func() int
	ReplOffset   func() int64
	ReplicaCount func() int // number of connected replicas; 0 on a replica node
}

// Reporter logs one "server stats" line every Interval.
type Reporter struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger
}

// New builds a Reporter. interval <= 0 is treated as 15s.
func New(src Source, interval time.Duration, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{src: src, interval: interval, logger: logger.With("component", "stats_reporter")}
}

// Run blocks, logging on each tick, until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	host := collectHost(r.logger)

	keys := 0
	if r.src.KeyCount != nil {
		keys = r.src.KeyCount()
	}
	var offset int64
	if r.src.ReplOffset != nil {
		offset = r.src.ReplOffset()
	}
	replicas := 0
	if r.src.ReplicaCount != nil {
		replicas = r.src.ReplicaCount()
	}

	r.logger.Info("server stats",
		"keys", keys,
		"repl_offset", offset,
		"connected_replicas", replicas,
		"cpu_percent", host.cpuPercent,
		"mem_percent", host.memPercent,
		"load1", host.load1,
	)
}

type hostStats struct {
	cpuPercent float64
	memPercent float64
	load1      float64
}

func collectHost(logger *slog.Logger) hostStats {
	var h hostStats

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		h.cpuPercent = pct[0]
	} else if err != nil {
		logger.Debug("collecting cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		h.memPercent = v.UsedPercent
	} else {
		logger.Debug("collecting memory stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		h.load1 = l.Load1
	} else {
		logger.Debug("collecting load stats", "error", err)
	}

	return h
}
