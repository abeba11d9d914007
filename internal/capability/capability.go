// Package capability defines the typed contracts for the six external
// stage providers the tailoring pipeline depends on: parse, embed,
// retrieve, generate, validate, and render. Concrete providers live
// outside this service; the pipeline depends only on the request and
// response shapes declared here.
package capability

// DocumentKind identifies which schema a parsed document should follow.
type DocumentKind string

const (
	KindJobDescription DocumentKind = "jd"
	KindResume         DocumentKind = "resume"
)

// JobDescription is the structured form of a parsed job posting.
type JobDescription struct {
	Title            string       `json:"title"`
	Summary          string       `json:"summary"`
	Responsibilities []string     `json:"responsibilities"`
	Requirements     []string     `json:"requirements"`
	Skills           []string     `json:"skills"`
	Keywords         []string     `json:"keywords,omitempty"`
	Competencies     []Competency `json:"competencies,omitempty"`
	RawText          string       `json:"rawText,omitempty"`
}

// Competency is a named capability cue surfaced from the job description,
// with the indicators a document can use as evidence for it.
type Competency struct {
	Name               string   `json:"name"`
	EvidenceIndicators []string `json:"evidenceIndicators,omitempty"`
}

// ResumeDocument is the canonical schema shared by parsed base resumes
// and generated tailored documents.
type ResumeDocument struct {
	Summary    string           `json:"summary"`
	Experience []ExperienceRole `json:"experience"`
	Education  []string         `json:"education,omitempty"`
	Skills     []string         `json:"skills"`
	Projects   []Project        `json:"projects,omitempty"`
}

// ExperienceRole is one position within the experience section.
type ExperienceRole struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
	Achievements []string `json:"achievements"`
}

// Project is a named project entry with a short description.
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Bullets returns every achievement statement across the experience
// section, in document order.
func (d ResumeDocument) Bullets() []string {
	bullets := make([]string, 0)
	for _, role := range d.Experience {
		bullets = append(bullets, role.Achievements...)
	}
	return bullets
}

// EvidenceChunk is one ranked snippet returned by the retrieval provider.
type EvidenceChunk struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ChangeEntry documents one modification made during generation.
type ChangeEntry struct {
	Type      string `json:"type"`
	Detail    string `json:"detail"`
	Rationale string `json:"rationale,omitempty"`
}

// FeedbackNote is a reviewer signal passed to retrieval for weighting.
type FeedbackNote struct {
	Comment string  `json:"comment"`
	Score   float64 `json:"score"`
}
