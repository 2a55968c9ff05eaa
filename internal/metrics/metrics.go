package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "pgbackuper"

// Recorder receives backup and restore outcomes. Outcome labels are the
// pipeline outcome kinds.
type Recorder interface {
	ObserveBackup(outcome string, duration time.Duration, size int64)
	IncBackupSkipped()
	ObserveRestore(outcome string, duration time.Duration)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveBackup(string, time.Duration, int64) {}
func (Noop) IncBackupSkipped()                          {}
func (Noop) ObserveRestore(string, time.Duration)       {}

// Prom implements Recorder backed by Prometheus collectors.
type Prom struct {
	backups         *prometheus.CounterVec
	backupDuration  prometheus.Histogram
	backupSize      prometheus.Gauge
	lastSuccess     prometheus.Gauge
	backupsSkipped  prometheus.Counter
	restores        *prometheus.CounterVec
	restoreDuration prometheus.Histogram
}

func NewProm(reg prometheus.Registerer) (*Prom, error) {
	buckets := []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200}
	p := &Prom{
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backups_total",
			Help:      "Backup runs by outcome",
		}, []string{"outcome"}),
		backupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "backup_duration_seconds",
			Help:      "Wall time of backup runs",
			Buckets:   buckets,
		}),
		backupSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "backup_size_bytes",
			Help:      "Size of the last successfully uploaded archive",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_backup_success_timestamp_seconds",
			Help:      "Unix time of the last successful backup",
		}),
		backupsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backups_skipped_total",
			Help:      "Scheduled backups skipped because one was already running",
		}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "restores_total",
			Help:      "Restore runs by outcome",
		}, []string{"outcome"}),
		restoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "restore_duration_seconds",
			Help:      "Wall time of restore runs",
			Buckets:   buckets,
		}),
	}
	for _, c := range []prometheus.Collector{
		p.backups, p.backupDuration, p.backupSize, p.lastSuccess,
		p.backupsSkipped, p.restores, p.restoreDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prom) ObserveBackup(outcome string, duration time.Duration, size int64) {
	p.backups.WithLabelValues(outcome).Inc()
	p.backupDuration.Observe(duration.Seconds())
	if outcome == "success" {
		p.backupSize.Set(float64(size))
		p.lastSuccess.SetToCurrentTime()
	}
}

func (p *Prom) IncBackupSkipped() {
	p.backupsSkipped.Inc()
}

func (p *Prom) ObserveRestore(outcome string, duration time.Duration) {
	p.restores.WithLabelValues(outcome).Inc()
	p.restoreDuration.Observe(duration.Seconds())
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
