package worker

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReporterSnapshot is a point-in-time view of the reporter counters.
type ReporterSnapshot struct {
	Requests   uint64 `json:"requests"`
	Successful uint64 `json:"successful"`
	Failed     uint64 `json:"failed"`
}

// Reporter records request counts and durations for a worker.
type Reporter struct {
	mu sync.Mutex

	snapshot ReporterSnapshot

	requestsTotal   prometheus.Counter
	requestDuration *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// NewReporter creates the collectors. A nil registerer uses the default one.
func NewReporter(registerer prometheus.Registerer) *Reporter {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Reporter{
		registerer: registerer,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "total_requests",
			Help: "The total number of requests serviced by this worker.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "The duration in seconds between receiving a request and publishing its reply.",
			Buckets: prometheus.LinearBuckets(0.02, 3, 10),
		}, []string{"is_successful"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (r *Reporter) Register() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{r.requestsTotal, r.requestDuration} {
		if err := r.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	r.registered = true
	return nil
}

// RecordRequest counts one received request.
func (r *Reporter) RecordRequest() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.snapshot.Requests++
	r.mu.Unlock()
	r.requestsTotal.Inc()
}

// RecordResponse observes how long a request took and whether it succeeded.
func (r *Reporter) RecordResponse(successful bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	if successful {
		r.snapshot.Successful++
	} else {
		r.snapshot.Failed++
	}
	r.mu.Unlock()
	r.requestDuration.WithLabelValues(strconv.FormatBool(successful)).Observe(elapsed.Seconds())
}

// Snapshot returns a copy of the counters.
func (r *Reporter) Snapshot() ReporterSnapshot {
	if r == nil {
		return ReporterSnapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}
