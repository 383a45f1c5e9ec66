package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "loganalyzer_"

type StoreOperation string

const (
	StoreOperationFlush   StoreOperation = "flush"
	StoreOperationSummary StoreOperation = "summary"
	StoreOperationJob     StoreOperation = "job"
	StoreOperationQuery   StoreOperation = "query"
)

type Metrics struct {
	linesRead        *prometheus.CounterVec
	eventsFlushed    prometheus.Counter
	batchesFlushed   prometheus.Counter
	storeErrors      *prometheus.CounterVec
	jobTransitions   *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	queryDuration    prometheus.Histogram
}

var (
	m    *Metrics
	once sync.Once
)

// Get returns the process wide metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		m = newMetrics(MetricsPrefix)
	})
	return m
}

func newMetrics(prefix string) *Metrics {
	return &Metrics{
		linesRead: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "lines_read",
			Help: "Number of log lines read, grouped by whether they matched the access log grammar",
		}, []string{"parsed"}),
		eventsFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "events_flushed",
			Help: "Number of events written to the event store",
		}),
		batchesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: prefix + "batches_flushed",
			Help: "Number of event batches written to the event store",
		}),
		storeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "store_errors",
			Help: "Number of store errors grouped by operation",
		}, []string{"operation"}),
		jobTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "job_transitions",
			Help: "Number of jobs entering each state",
		}, []string{"state"}),
		analysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "analysis_duration_seconds",
			Help:    "Wall clock time of one analysis run",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		queryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "event_query_duration_seconds",
			Help:    "Latency of paginated event queries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordLine(parsed bool) {
	if parsed {
		m.linesRead.WithLabelValues("true").Inc()
	} else {
		m.linesRead.WithLabelValues("false").Inc()
	}
}

func (m *Metrics) RecordFlush(events int) {
	m.batchesFlushed.Inc()
	m.eventsFlushed.Add(float64(events))
}

func (m *Metrics) RecordStoreError(operation StoreOperation) {
	m.storeErrors.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordJobState(state string) {
	m.jobTransitions.WithLabelValues(state).Inc()
}

// AnalysisDuration is the observer handed to the background task runner.
func (m *Metrics) AnalysisDuration() prometheus.Observer {
	return m.analysisDuration
}

func (m *Metrics) RecordQuery(taken time.Duration) {
	m.queryDuration.Observe(taken.Seconds())
}
