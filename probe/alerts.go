package probe

import "github.com/netwatch/netwatch/model"

// AlertRaiser is the subset of alertpipe.Pipeline every condition-detecting
// worker needs, kept as an interface here to avoid an import cycle between
// probe and alertpipe (the same pattern as the Classifier interface in
// ping.go). Workers own condition detection; the pipeline owns every stage
// after Raise/Clear is called (spec §4.9).
type AlertRaiser interface {
	Raise(kind model.AlertKind, severity model.AlertSeverity, subject, message string)
	Clear(fingerprint uint64)
	ObserveMetric(metric model.MetricName, v float64)
	Threshold(metric model.MetricName) float64
	Fingerprint(kind model.AlertKind, subject string) uint64
}
