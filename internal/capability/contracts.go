package capability

import "context"

// ParseRequest carries raw document bytes to the parse provider.
type ParseRequest struct {
	TenantID    string       `json:"tenantId"`
	Data        []byte       `json:"data"`
	ContentType string       `json:"contentType"`
	Kind        DocumentKind `json:"kind"`
}

// ParseResult holds the structured document produced by the parse
// provider. Exactly one of JobDescription or Resume is populated,
// matching the requested kind.
type ParseResult struct {
	JobDescription *JobDescription `json:"jobDescription,omitempty"`
	Resume         *ResumeDocument `json:"resume,omitempty"`
}

// Parser converts raw document bytes into a structured schema.
// Fails with ErrUnreadableDocument when the bytes cannot be parsed.
type Parser interface {
	Parse(ctx context.Context, req ParseRequest) (*ParseResult, error)
}

// EmbedRequest carries normalized text chunks to the embedding provider.
type EmbedRequest struct {
	TenantID string   `json:"tenantId"`
	JobID    string   `json:"jobId"`
	Texts    []string `json:"texts"`
}

// EmbedResult holds one vector per input text plus the shared dimension.
type EmbedResult struct {
	Vectors   [][]float64 `json:"vectors"`
	Dimension int         `json:"dimension"`
}

// Embedder produces embedding vectors for text.
// Fails with ErrEmbeddingUnavailable when the model cannot be reached.
type Embedder interface {
	Embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error)
}

// RetrieveRequest queries the vector index within a tenant scope.
// Feedback notes from prior reviews are passed through for weighting.
type RetrieveRequest struct {
	TenantID string         `json:"tenantId"`
	JobID    string         `json:"jobId"`
	Vector   []float64      `json:"vector"`
	TopK     int            `json:"topK"`
	Feedback []FeedbackNote `json:"feedback,omitempty"`
}

// RetrieveResult holds ranked evidence snippets.
type RetrieveResult struct {
	Chunks []EvidenceChunk `json:"chunks"`
}

// Retriever returns ranked evidence snippets for a query vector.
// Fails with ErrIndexUnavailable when the index cannot be reached.
type Retriever interface {
	Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error)
}

// GenerateRequest carries the composed prompt, supporting evidence, and
// any gap-fill directives from a prior quality-gate failure.
type GenerateRequest struct {
	TenantID   string          `json:"tenantId"`
	JobID      string          `json:"jobId"`
	Prompt     string          `json:"prompt"`
	Evidence   []EvidenceChunk `json:"evidence"`
	Directives []string        `json:"directives,omitempty"`
}

// GenerateResult holds the candidate document text. Providers may return
// bare JSON or JSON inside a markdown fence; callers parse it into a
// ResumeDocument plus change log.
type GenerateResult struct {
	Text string `json:"text"`
}

// Generator produces candidate tailored document text.
// Fails with ErrGenerationBlocked on policy rejection.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// RenderRequest carries an approved document to the render provider.
type RenderRequest struct {
	TenantID  string         `json:"tenantId"`
	JobID     string         `json:"jobId"`
	Document  ResumeDocument `json:"document"`
	ChangeLog []ChangeEntry  `json:"changeLog"`
}

// RenderResult holds the rendered artifact bytes and the change log as
// rendered (providers may normalize entries).
type RenderResult struct {
	DOCX      []byte        `json:"docx"`
	PDF       []byte        `json:"pdf"`
	ChangeLog []ChangeEntry `json:"changeLog"`
}

// Renderer produces DOCX and PDF bytes for an approved document.
// Fails with ErrRenderFailed when rendering cannot complete.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
}

// Set bundles one adapter per pipeline stage. The validate stage has no
// adapter; it is served by the in-process evaluation engine.
type Set struct {
	Parser    Parser
	Embedder  Embedder
	Retriever Retriever
	Generator Generator
	Renderer  Renderer
}
