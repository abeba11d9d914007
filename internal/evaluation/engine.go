package evaluation

import (
	"math"
	"strings"

	"github.com/atelier-systems/tailor/internal/capability"
)

// evidencePrefixLen is how many leading characters of a statement must
// appear verbatim in some evidence text for the statement to count as
// attributable. Chosen to tolerate trailing elaboration while still
// requiring the claim itself to be grounded.
const evidencePrefixLen = 80

// Engine computes quality reports. Keywords is the explicitly configured
// ATS keyword list merged with keywords surfaced from the job description.
type Engine struct {
	Keywords []string
}

// Evaluate computes the full quality report for a tailored document
// against its job-description targets and retrieval evidence.
func (e Engine) Evaluate(
	jd capability.JobDescription,
	doc capability.ResumeDocument,
	evidence []capability.EvidenceChunk,
) Report {
	docTokens := documentTokens(doc)

	coverage, missingTargets := e.coverage(jd, docTokens)
	keywordScore, missingKeywords := e.keywordScore(jd, docTokens)

	return Report{
		JDCoverage:             coverage,
		MissingCoverageTargets: missingTargets,
		ATSKeywordScore:        keywordScore,
		MissingATSKeywords:     missingKeywords,
		Hallucinations:         e.hallucinations(jd, doc, evidence),
		Consistency:            e.consistency(doc),
		ReadabilityGradeLevel:  e.readability(doc),
	}
}

// coverage scores how many JD targets the document addresses. A target is
// covered when every one of its stemmed tokens appears in the document's
// stemmed token set. Missing targets preserve original JD order.
func (e Engine) coverage(jd capability.JobDescription, docTokens tokenSet) (float64, []string) {
	targets := coverageTargets(jd)
	missing := make([]string, 0)
	if len(targets) == 0 {
		return 1.0, missing
	}

	hits := 0
	for _, target := range targets {
		if docTokens.containsAll(tokenize(target)) {
			hits++
		} else {
			missing = append(missing, target)
		}
	}

	return round3(float64(hits) / float64(len(targets))), missing
}

// keywordScore scores ATS keyword satisfaction over JD skills, the
// configured keyword list, and competency evidence indicators. Keywords
// are deduplicated case-insensitively, first occurrence wins.
func (e Engine) keywordScore(jd capability.JobDescription, docTokens tokenSet) (float64, []string) {
	keywords := e.keywordList(jd)
	missing := make([]string, 0)
	if len(keywords) == 0 {
		return 1.0, missing
	}

	hits := 0
	for _, keyword := range keywords {
		if docTokens.containsAll(tokenize(keyword)) {
			hits++
		} else {
			missing = append(missing, keyword)
		}
	}

	return round3(float64(hits) / float64(len(keywords))), missing
}

// hallucinations flags experience bullets with no attributable evidence
// in the JD text or retrieval context, in document order.
func (e Engine) hallucinations(
	jd capability.JobDescription,
	doc capability.ResumeDocument,
	evidence []capability.EvidenceChunk,
) []string {
	corpus := make([]string, 0, len(evidence)+1)
	for _, chunk := range evidence {
		corpus = append(corpus, strings.ToLower(chunk.Text))
	}
	corpus = append(corpus, strings.ToLower(jobDescriptionText(jd)))

	flagged := make([]string, 0)
	for _, bullet := range doc.Bullets() {
		prefix := strings.ToLower(bullet)
		if len(prefix) > evidencePrefixLen {
			prefix = prefix[:evidencePrefixLen]
		}

		attributed := false
		for _, text := range corpus {
			if strings.Contains(text, prefix) {
				attributed = true
				break
			}
		}
		if !attributed {
			flagged = append(flagged, bullet)
		}
	}
	return flagged
}

// consistency scores bullet-length uniformity across the experience
// section: 1 minus the coefficient of variation of bullet word counts,
// clamped to [0,1]. Uniform lengths score 1.0; no bullets score 0.0.
func (e Engine) consistency(doc capability.ResumeDocument) float64 {
	if len(doc.Experience) == 0 {
		return 0.0
	}

	lengths := make([]float64, 0)
	for _, bullet := range doc.Bullets() {
		lengths = append(lengths, float64(len(strings.Fields(bullet))))
	}
	if len(lengths) == 0 {
		return 0.0
	}

	var sum float64
	for _, l := range lengths {
		sum += l
	}
	mean := sum / float64(len(lengths))
	if mean == 0 {
		return 0.0
	}

	var variance float64
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lengths))

	score := 1.0 - math.Sqrt(variance)/mean
	return round3(math.Min(math.Max(score, 0.0), 1.0))
}

// readability computes the Flesch-Kincaid grade level over the summary
// and experience bullets. Empty text defaults to grade 12.
func (e Engine) readability(doc capability.ResumeDocument) float64 {
	segments := append([]string{doc.Summary}, doc.Bullets()...)
	text := strings.Join(segments, " ")

	words := strings.Fields(text)
	if len(words) == 0 {
		return 12.0
	}

	sentences := strings.Count(text, ".")
	if sentences < 1 {
		sentences = 1
	}

	syllables := 0
	for _, word := range words {
		syllables += approxSyllables(word)
	}

	grade := 0.39*(float64(len(words))/float64(sentences)) +
		11.8*(float64(syllables)/float64(len(words))) - 15.59
	return round2(math.Max(grade, 1.0))
}

// keywordList assembles the ATS keyword set in input order: JD skills,
// JD-surfaced keywords, the configured list, then competency evidence
// indicators, deduplicated case-insensitively.
func (e Engine) keywordList(jd capability.JobDescription) []string {
	seen := make(map[string]bool)
	keywords := make([]string, 0)

	add := func(values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			key := strings.ToLower(v)
			if seen[key] {
				continue
			}
			seen[key] = true
			keywords = append(keywords, v)
		}
	}

	add(jd.Skills)
	add(jd.Keywords)
	add(e.Keywords)
	for _, competency := range jd.Competencies {
		add(competency.EvidenceIndicators)
	}

	return keywords
}

// coverageTargets enumerates JD targets in original order: requirements,
// responsibilities, skills, then competency names and their indicators.
func coverageTargets(jd capability.JobDescription) []string {
	targets := make([]string, 0)
	targets = append(targets, jd.Requirements...)
	targets = append(targets, jd.Responsibilities...)
	targets = append(targets, jd.Skills...)
	for _, competency := range jd.Competencies {
		if competency.Name != "" {
			targets = append(targets, competency.Name)
		}
		for _, indicator := range competency.EvidenceIndicators {
			if indicator != "" {
				targets = append(targets, indicator)
			}
		}
	}
	return targets
}

// documentTokens collects the stemmed token set of all salient document
// text: summary, bullets, skills, and project names and descriptions.
func documentTokens(doc capability.ResumeDocument) tokenSet {
	segments := []string{doc.Summary}
	segments = append(segments, doc.Bullets()...)
	segments = append(segments, doc.Skills...)
	for _, project := range doc.Projects {
		segments = append(segments, project.Name, project.Description)
	}

	tokens := make(tokenSet)
	for _, segment := range segments {
		for token := range tokenize(segment) {
			tokens[token] = true
		}
	}
	return tokens
}

// jobDescriptionText flattens the JD into one searchable blob for
// hallucination attribution.
func jobDescriptionText(jd capability.JobDescription) string {
	parts := []string{jd.Title, jd.Summary}
	parts = append(parts, jd.Responsibilities...)
	parts = append(parts, jd.Requirements...)
	parts = append(parts, jd.Skills...)
	for _, competency := range jd.Competencies {
		parts = append(parts, competency.Name)
		parts = append(parts, competency.EvidenceIndicators...)
	}
	parts = append(parts, jd.RawText)
	return strings.Join(parts, "\n")
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
