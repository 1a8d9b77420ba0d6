package model

import "time"

// ProblemKind is the exclusive classification produced by the problem
// classifier (spec §3/§4.8).
type ProblemKind string

const (
	ProblemNone    ProblemKind = "none"
	ProblemISP     ProblemKind = "isp"
	ProblemLocal   ProblemKind = "local"
	ProblemDNS     ProblemKind = "dns"
	ProblemMTU     ProblemKind = "mtu"
	ProblemUnknown ProblemKind = "unknown"
)

// Prediction is the classifier's forward-looking call (spec §4.8).
type Prediction string

const (
	PredictionStable Prediction = "stable"
	PredictionRisk   Prediction = "risk"
)

// ProblemDiagnosis is the classifier's output, written back to the
// repository atomically on every evaluation (spec §3/§4.8).
type ProblemDiagnosis struct {
	Kind             ProblemKind
	Prediction       Prediction
	RecurringPattern bool
	EvaluatedAt      time.Time
	CauseSummary     string
}
