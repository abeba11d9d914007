package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// HTTPSet implements every adapter contract against JSON-over-HTTP
// provider endpoints. Each stage posts its request type and decodes its
// result type; provider faults are mapped to the stage's failure signal.
type HTTPSet struct {
	client *http.Client
	cfg    *Config
	logger *slog.Logger
}

// NewHTTPSet creates an HTTPSet from the given configuration.
func NewHTTPSet(cfg *Config, logger *slog.Logger) *HTTPSet {
	return &HTTPSet{
		client: &http.Client{Timeout: cfg.TimeoutDuration()},
		cfg:    cfg,
		logger: logger.With("system", "capability"),
	}
}

// Adapters returns the Set view of the HTTP providers.
func (h *HTTPSet) Adapters() Set {
	return Set{
		Parser:    h,
		Embedder:  h,
		Retriever: h,
		Generator: h,
		Renderer:  h,
	}
}

func (h *HTTPSet) Parse(ctx context.Context, req ParseRequest) (*ParseResult, error) {
	var result ParseResult
	if err := h.post(ctx, h.cfg.ParseURL, req, &result, ErrUnreadableDocument); err != nil {
		return nil, err
	}
	if result.JobDescription == nil && result.Resume == nil {
		return nil, fmt.Errorf("%w: provider returned no document", ErrUnreadableDocument)
	}
	return &result, nil
}

func (h *HTTPSet) Embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error) {
	var result EmbedResult
	if err := h.post(ctx, h.cfg.EmbedURL, req, &result, ErrEmbeddingUnavailable); err != nil {
		return nil, err
	}
	if len(result.Vectors) != len(req.Texts) {
		return nil, fmt.Errorf("%w: vector count %d does not match input count %d",
			ErrEmbeddingUnavailable, len(result.Vectors), len(req.Texts))
	}
	return &result, nil
}

func (h *HTTPSet) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	var result RetrieveResult
	if err := h.post(ctx, h.cfg.RetrieveURL, req, &result, ErrIndexUnavailable); err != nil {
		return nil, err
	}
	return &result, nil
}

func (h *HTTPSet) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var result GenerateResult
	if err := h.post(ctx, h.cfg.GenerateURL, req, &result, ErrGenerationBlocked); err != nil {
		return nil, err
	}
	return &result, nil
}

func (h *HTTPSet) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	var result RenderResult
	if err := h.post(ctx, h.cfg.RenderURL, req, &result, ErrRenderFailed); err != nil {
		return nil, err
	}
	return &result, nil
}

// post sends a JSON request and decodes the JSON response. Throttling and
// 5xx responses map to the transient sentinels; other non-2xx responses
// wrap the stage's terminal failure signal.
func (h *HTTPSet) post(ctx context.Context, endpoint string, in, out any, terminal error) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrThrottled, detail)
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, detail)
		default:
			return fmt.Errorf("%w: status %d: %s", terminal, resp.StatusCode, detail)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", terminal, err)
	}
	return nil
}
