package logger

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	fetchErrors      int64
	fetchWarns       int64
	snapshotsWritten int64
	snapshotsRead    int64
	rowsUpserted     int64
)

func recordWarn(component string) {
	if strings.Contains(component, "collector") || strings.Contains(component, "feed") {
		atomic.AddInt64(&fetchWarns, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "collector") || strings.Contains(component, "feed") {
		atomic.AddInt64(&fetchErrors, 1)
	}
}

// IncrementSnapshotWritten records one staged snapshot artifact.
func IncrementSnapshotWritten() {
	atomic.AddInt64(&snapshotsWritten, 1)
}

// IncrementSnapshotRead records one snapshot parsed during reconciliation.
func IncrementSnapshotRead() {
	atomic.AddInt64(&snapshotsRead, 1)
}

// AddRowsUpserted records rows persisted by the deviation repository.
func AddRowsUpserted(n int) {
	atomic.AddInt64(&rowsUpserted, int64(n))
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"fetch_errors":      atomic.LoadInt64(&fetchErrors),
		"fetch_warns":       atomic.LoadInt64(&fetchWarns),
		"snapshots_written": atomic.LoadInt64(&snapshotsWritten),
		"snapshots_read":    atomic.LoadInt64(&snapshotsRead),
		"rows_upserted":     atomic.LoadInt64(&rowsUpserted),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         int64(memStats.Used) / 1024 / 1024,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		{MetricName: aws.String("FetchErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fetchErrors)))},
		{MetricName: aws.String("SnapshotsWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&snapshotsWritten)))},
		{MetricName: aws.String("SnapshotsRead"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&snapshotsRead)))},
		{MetricName: aws.String("RowsUpserted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&rowsUpserted)))},
	}
	publishMetrics(ctx, data)
}
