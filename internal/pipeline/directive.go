package pipeline

import (
	"fmt"
	"strings"

	"github.com/atelier-systems/tailor/internal/capability"
	"github.com/atelier-systems/tailor/internal/evaluation"
)

// buildPrompt composes the generation prompt from the parsed job
// description and base resume. The prompt instructs the provider to
// return JSON matching the canonical document schema plus a change log.
func buildPrompt(jd *capability.JobDescription, resume *capability.ResumeDocument) string {
	var b strings.Builder

	b.WriteString("Tailor the base resume below to the job description. ")
	b.WriteString("Only restate facts present in the base resume or the supplied evidence; never invent experience. ")
	b.WriteString("Respond with a JSON object holding \"document\" (schema identical to the base resume) ")
	b.WriteString("and \"changeLog\" (array of {type, detail, rationale}).\n\n")

	b.WriteString("## Job Description\n")
	b.WriteString(fmt.Sprintf("Title: %s\n", jd.Title))
	if jd.Summary != "" {
		b.WriteString(fmt.Sprintf("Summary: %s\n", jd.Summary))
	}
	writeList(&b, "Responsibilities", jd.Responsibilities)
	writeList(&b, "Requirements", jd.Requirements)
	writeList(&b, "Skills", jd.Skills)

	b.WriteString("\n## Base Resume\n")
	b.WriteString(fmt.Sprintf("Summary: %s\n", resume.Summary))
	for _, role := range resume.Experience {
		b.WriteString(fmt.Sprintf("- %s, %s\n", role.Title, role.Company))
		for _, achievement := range role.Achievements {
			b.WriteString(fmt.Sprintf("  - %s\n", achievement))
		}
	}
	writeList(&b, "Skills", resume.Skills)

	return b.String()
}

// directives converts a failing evaluation report into gap-fill
// instructions for the next generation cycle.
func directives(report evaluation.Report) []string {
	result := make([]string, 0, 3)

	if len(report.MissingCoverageTargets) > 0 {
		result = append(result, fmt.Sprintf(
			"Address these job description targets where the base resume truthfully supports them: %s",
			strings.Join(report.MissingCoverageTargets, "; ")))
	}
	if len(report.MissingATSKeywords) > 0 {
		result = append(result, fmt.Sprintf(
			"Work these keywords into the summary or skills where accurate: %s",
			strings.Join(report.MissingATSKeywords, ", ")))
	}
	if len(report.Hallucinations) > 0 {
		result = append(result, fmt.Sprintf(
			"Remove or rewrite these statements; they have no supporting evidence: %s",
			strings.Join(report.Hallucinations, "; ")))
	}

	return result
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(label + ":\n")
	for _, item := range items {
		b.WriteString(fmt.Sprintf("- %s\n", item))
	}
}
