package simplemedia

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload outcomes recorded on simplemedia_uploads_total.
const (
	resultCreated      = "created"
	resultDeduplicated = "deduplicated"
	resultFailed       = "failed"
)

// Metrics holds the Prometheus collectors of the upload pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	uploads        *prometheus.CounterVec
	failures       *prometheus.CounterVec
	blobWrites     prometheus.Counter
	uploadBytes    prometheus.Counter
	uploadDuration prometheus.Histogram
}

// NewMetrics registers the upload collectors with reg. A nil reg registers
// with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "simplemedia_uploads_total",
			Help: "Upload attempts by outcome.",
		}, []string{"result"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "simplemedia_upload_failures_total",
			Help: "Failed uploads by reason.",
		}, []string{"reason"}),
		blobWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "simplemedia_blob_writes_total",
			Help: "Objects written to the blob store.",
		}),
		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "simplemedia_upload_bytes_total",
			Help: "Bytes written to the blob store.",
		}),
		uploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "simplemedia_upload_duration_seconds",
			Help:    "Time spent in UploadFile.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeResult(result string, started time.Time) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
	m.uploadDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeFailure(reason string, started time.Time) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
	m.observeResult(resultFailed, started)
}

func (m *Metrics) observeBlobWrite(size int64) {
	if m == nil {
		return
	}
	m.blobWrites.Inc()
	m.uploadBytes.Add(float64(size))
}
