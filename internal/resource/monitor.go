// Package resource samples host memory and disk pressure so the pipeline
// can surface advisory warnings before heavy operations. Readings never
// block an operation; they only inform logging and plan selection.
package resource

import (
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Pressure thresholds above which a snapshot carries a warning.
const (
	MemoryWarnRatio      = 0.90
	DiskWarnRatio        = 0.90
	AcceleratorWarnRatio = 0.85
)

// Snapshot is one point-in-time reading of host pressure. Ratios are in
// [0,1]; a ratio of zero with no warning means the sampler had nothing
// to report.
type Snapshot struct {
	MemoryUsageRatio      float64
	DiskUsageRatio        float64
	AcceleratorUsageRatio float64
	Warnings              []string
}

// Constrained reports whether any sampled resource crossed its threshold.
func (s Snapshot) Constrained() bool {
	return len(s.Warnings) > 0
}

// Samplers supply raw usage ratios. Injectable for tests and for hosts
// with accelerator telemetry.
type (
	MemorySampler      func() (float64, error)
	DiskSampler        func(path string) (float64, error)
	AcceleratorSampler func() (float64, error)
)

// Monitor produces advisory resource snapshots for a watched path.
type Monitor struct {
	path        string
	memory      MemorySampler
	disk        DiskSampler
	accelerator AcceleratorSampler
	logger      *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMemorySampler overrides the host memory sampler.
func WithMemorySampler(s MemorySampler) Option {
	return func(m *Monitor) { m.memory = s }
}

// WithDiskSampler overrides the disk usage sampler.
func WithDiskSampler(s DiskSampler) Option {
	return func(m *Monitor) { m.disk = s }
}

// WithAcceleratorSampler installs accelerator telemetry. Without one the
// accelerator ratio is always zero.
func WithAcceleratorSampler(s AcceleratorSampler) Option {
	return func(m *Monitor) { m.accelerator = s }
}

// NewMonitor builds a Monitor watching disk usage at path.
func NewMonitor(path string, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		path:   path,
		memory: hostMemoryRatio,
		disk:   hostDiskRatio,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot samples all configured resources. Sampler failures are logged
// and leave the corresponding ratio at zero; a snapshot is always
// returned.
func (m *Monitor) Snapshot() Snapshot {
	var snap Snapshot

	if ratio, err := m.memory(); err != nil {
		m.logger.Warn("memory sampling failed", slog.Any("error", err))
	} else {
		snap.MemoryUsageRatio = ratio
		if ratio > MemoryWarnRatio {
			snap.Warnings = append(snap.Warnings,
				fmt.Sprintf("memory usage at %.0f%%", ratio*100))
		}
	}

	if ratio, err := m.disk(m.path); err != nil {
		m.logger.Warn("disk sampling failed", slog.String("path", m.path), slog.Any("error", err))
	} else {
		snap.DiskUsageRatio = ratio
		if ratio > DiskWarnRatio {
			snap.Warnings = append(snap.Warnings,
				fmt.Sprintf("disk usage at %.0f%% for %s", ratio*100, m.path))
		}
	}

	if m.accelerator != nil {
		if ratio, err := m.accelerator(); err != nil {
			m.logger.Warn("accelerator sampling failed", slog.Any("error", err))
		} else {
			snap.AcceleratorUsageRatio = ratio
			if ratio > AcceleratorWarnRatio {
				snap.Warnings = append(snap.Warnings,
					fmt.Sprintf("accelerator memory at %.0f%%", ratio*100))
			}
		}
	}

	return snap
}

func hostMemoryRatio() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent / 100, nil
}

func hostDiskRatio(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent / 100, nil
}
