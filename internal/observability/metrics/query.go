package metrics

import (
	"time"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

// RecordAskObservation records one answered ask: stage timings from the
// latency breakdown plus retrieval volume.
func (m *HTTPServerMetrics) RecordAskObservation(service string, result domain.AnswerResult) {
	m.askTotal.WithLabelValues(service, "success").Inc()
	m.askStageDuration.WithLabelValues(service, "retrieval").Observe(msToSeconds(result.Breakdown.RetrievalMS))
	m.askStageDuration.WithLabelValues(service, "synthesis").Observe(msToSeconds(result.Breakdown.SynthesisMS))
	m.askStageDuration.WithLabelValues(service, "total").Observe(msToSeconds(result.LatencyMS))
	m.askVectorHits.WithLabelValues(service).Observe(float64(result.VectorCount))
	m.askGraphFacts.WithLabelValues(service).Observe(float64(result.GraphCount))
	m.askCitations.WithLabelValues(service).Observe(float64(len(result.Sources)))
}

// RecordAskFailure records one failed ask by error kind.
func (m *HTTPServerMetrics) RecordAskFailure(service string, err error) {
	m.askTotal.WithLabelValues(service, "error").Inc()
	m.askFailuresTotal.WithLabelValues(service, errorKindLabel(err)).Inc()
}

func errorKindLabel(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal"
	}
}

func msToSeconds(ms int64) float64 {
	return (time.Duration(ms) * time.Millisecond).Seconds()
}
