package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FixturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attnmock_fixtures_total",
		Help: "Total number of fixtures written, by layout",
	}, []string{"layout"})

	HeadsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attnmock_heads_generated_total",
		Help: "Total number of attention heads generated",
	})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attnmock_generation_duration_seconds",
		Help:    "Time spent generating all heads of one fixture",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
	})

	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attnmock_bytes_written_total",
		Help: "Total bytes written to fixture files, by file kind",
	}, []string{"kind"})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attnmock_validation_errors_total",
		Help: "Total number of generated matrices that failed a self-check",
	}, []string{"check"})

	AttentionMin = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attnmock_attention_min",
		Help: "Minimum rounded attention value of the last fixture",
	})

	AttentionMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attnmock_attention_max",
		Help: "Maximum rounded attention value of the last fixture",
	})

	SequenceLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attnmock_sequence_length_tokens",
		Help:    "Distribution of generated sequence lengths",
		Buckets: []float64{8, 16, 32, 64, 128, 256, 512, 1024},
	})

	FlightPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attnmock_flight_publishes_total",
		Help: "Fixtures sent over Arrow Flight, by outcome",
	}, []string{"outcome"})
)

func RecordHead() {
	HeadsGenerated.Inc()
}

func RecordGeneration(tokens int, duration time.Duration) {
	SequenceLength.Observe(float64(tokens))
	GenerationDuration.Observe(duration.Seconds())
}

func RecordRange(min, max float64) {
	AttentionMin.Set(min)
	AttentionMax.Set(max)
}

func RecordWrite(kind string, n int64) {
	BytesWritten.WithLabelValues(kind).Add(float64(n))
}

func RecordFixture(layout string) {
	FixturesTotal.WithLabelValues(layout).Inc()
}

func RecordValidationError(check string) {
	ValidationErrors.WithLabelValues(check).Inc()
}

func RecordFlightPublish(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	FlightPublishes.WithLabelValues(outcome).Inc()
}

// WriteTextfile dumps the default registry in text exposition format, for a
// node_exporter textfile collector to pick up after the run exits.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
