// Package evaluation implements the deterministic text-quality engine
// that gates tailored documents: job-description coverage, ATS keyword
// matching, hallucination detection, bullet consistency, and readability.
// Evaluation is a pure computation; identical inputs always produce
// byte-identical reports.
package evaluation

// Report is the evaluation result for one (document, context) pair.
// The JSON field names are a compatibility boundary consumed by
// downstream gating and review tooling; they must not change.
type Report struct {
	JDCoverage             float64  `json:"jdCoverage"`
	MissingCoverageTargets []string `json:"missingCoverageTargets"`
	ATSKeywordScore        float64  `json:"atsKeywordScore"`
	MissingATSKeywords     []string `json:"missingAtsKeywords"`
	Hallucinations         []string `json:"hallucinations"`
	Consistency            float64  `json:"consistency"`
	ReadabilityGradeLevel  float64  `json:"readabilityGradeLevel"`
}

// Thresholds are the quality-gate bounds a report must satisfy before a
// document may advance to rendering.
type Thresholds struct {
	Coverage float64
	Keyword  float64
}

// Passes reports whether the report satisfies the gate: coverage and
// keyword scores at or above their thresholds and no unresolved
// hallucinations.
func (r Report) Passes(t Thresholds) bool {
	return r.JDCoverage >= t.Coverage &&
		r.ATSKeywordScore >= t.Keyword &&
		len(r.Hallucinations) == 0
}
