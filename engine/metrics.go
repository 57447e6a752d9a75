package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors an ingest updates as it
// walks an image. A nil *Metrics is safe to call methods on (every
// method checks for nil), so components don't need to branch on
// whether the caller wired metrics in (SPEC_FULL.md §4 "Metrics").
type Metrics struct {
	FilesProcessed prometheus.Counter
	BytesHashed    prometheus.Counter
	ErrorsTotal    prometheus.Counter
	UnallocFiles   prometheus.Counter
}

// NewMetrics builds a Metrics registered against reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler, or a fresh *prometheus.Registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tskcat_files_processed_total",
			Help: "Number of File rows written during ingest.",
		}),
		BytesHashed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tskcat_bytes_hashed_total",
			Help: "Number of content bytes streamed through MD5.",
		}),
		ErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tskcat_errors_total",
			Help: "Number of per-file errors registered during ingest.",
		}),
		UnallocFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tskcat_unalloc_files_total",
			Help: "Number of virtual unallocated-block files emitted.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.FilesProcessed, m.BytesHashed, m.ErrorsTotal, m.UnallocFiles)
	}
	return m
}

func (m *Metrics) incFiles() {
	if m != nil {
		m.FilesProcessed.Inc()
	}
}

func (m *Metrics) addBytesHashed(n int64) {
	if m != nil && n > 0 {
		m.BytesHashed.Add(float64(n))
	}
}

func (m *Metrics) incErrors() {
	if m != nil {
		m.ErrorsTotal.Inc()
	}
}

func (m *Metrics) incUnalloc() {
	if m != nil {
		m.UnallocFiles.Inc()
	}
}

// IncFiles, AddBytesHashed, IncErrors, IncUnalloc are the exported
// forms used from other packages (process, coalesce).
func (m *Metrics) IncFiles()                { m.incFiles() }
func (m *Metrics) AddBytesHashed(n int64)   { m.addBytesHashed(n) }
func (m *Metrics) IncErrors()               { m.incErrors() }
func (m *Metrics) IncUnalloc()              { m.incUnalloc() }
