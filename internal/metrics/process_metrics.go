package metrics

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ServerSample holds CPU and memory figures for one managed server process.
type ServerSample struct {
	Server     string    `json:"server"`
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	SampledAt  time.Time `json:"sampled_at"`
}

// PIDSource yields the local PIDs to sample, keyed by server name. The
// snapshot store provides this; servers without a reported PID are skipped.
type PIDSource func() map[string]int32

// ProcessCollector samples CPU/RSS of the local managed server processes on a
// fixed interval and exports them as gauges. Sampling is best-effort: a PID
// that has exited between report and sample is skipped silently.
type ProcessCollector struct {
	interval time.Duration
	source   PIDSource
	logger   *slog.Logger

	mu      sync.RWMutex
	latest  map[string]ServerSample
	stopCh  chan struct{}
	stopped sync.Once

	cpuGauge *prometheus.GaugeVec
	memGauge *prometheus.GaugeVec
}

// NewProcessCollector builds a collector; Register the returned collector's
// gauges happen on Start against the default registry.
func NewProcessCollector(interval time.Duration, source PIDSource, logger *slog.Logger) *ProcessCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessCollector{
		interval: interval,
		source:   source,
		logger:   logger,
		latest:   make(map[string]ServerSample),
		stopCh:   make(chan struct{}),
		cpuGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "proxydash",
			Subsystem: "server",
			Name:      "cpu_percent",
			Help:      "CPU usage percent of a managed server process.",
		}, []string{"server"}),
		memGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "proxydash",
			Subsystem: "server",
			Name:      "memory_mb",
			Help:      "Resident memory in MB of a managed server process.",
		}, []string{"server"}),
	}
}

// Start registers the gauges and launches the sampling loop.
func (pc *ProcessCollector) Start(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{pc.cpuGauge, pc.memGauge} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	go pc.loop()
	return nil
}

// Stop terminates the sampling loop. Safe to call more than once.
func (pc *ProcessCollector) Stop() {
	pc.stopped.Do(func() { close(pc.stopCh) })
}

// Latest returns the most recent sample per server.
func (pc *ProcessCollector) Latest() map[string]ServerSample {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make(map[string]ServerSample, len(pc.latest))
	for k, v := range pc.latest {
		out[k] = v
	}
	return out
}

func (pc *ProcessCollector) loop() {
	t := time.NewTicker(pc.interval)
	defer t.Stop()
	for {
		select {
		case <-pc.stopCh:
			return
		case <-t.C:
			pc.sampleAll()
		}
	}
}

func (pc *ProcessCollector) sampleAll() {
	pids := pc.source()
	now := time.Now()
	for name, pid := range pids {
		if pid <= 0 {
			continue
		}
		p, err := gopsproc.NewProcess(pid)
		if err != nil {
			continue
		}
		cpu, err := p.CPUPercent()
		if err != nil {
			pc.logger.Debug("cpu sample failed", "server", name, "pid", pid, "error", err)
			continue
		}
		var memMB float64
		var threads int32
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			memMB = float64(mi.RSS) / 1024.0 / 1024.0
		}
		if n, err := p.NumThreads(); err == nil {
			threads = n
		}
		sample := ServerSample{
			Server:     name,
			PID:        pid,
			CPUPercent: cpu,
			MemoryMB:   memMB,
			NumThreads: threads,
			SampledAt:  now,
		}
		pc.mu.Lock()
		pc.latest[name] = sample
		pc.mu.Unlock()
		pc.cpuGauge.WithLabelValues(name).Set(cpu)
		pc.memGauge.WithLabelValues(name).Set(memMB)
	}
}
