package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "github.com/kbforge/kbindexd/internal/errors"
)

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	dims      int
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama and, unless configured
// otherwise, probes the model to learn its vector size. A failed probe
// is fatal: the process must not start against an embedder it cannot
// use.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	e := &OllamaEmbedder{
		// Per-request timeouts come from the context, not the client,
		// so a slow cold model load does not cut off every later call.
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipProbe {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		if !e.Available(probeCtx) {
			transport.CloseIdleConnections()
			return nil, errs.New(errs.ErrCodeEmbedderUnavailable,
				"embedding service is not reachable", nil).
				WithDetail("host", cfg.Host)
		}
		if e.dims == 0 {
			dims, err := e.detectDimensions(probeCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, errs.New(errs.ErrCodeEmbedderUnavailable,
					"failed to detect embedding dimensions", err).
					WithDetail("model", cfg.Model)
			}
			e.dims = dims
		}
	}

	return e, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, errs.EmbedderError("marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errs.EmbedderError("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errs.EmbedderError("embed request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errs.EmbedderError(
			fmt.Sprintf("embed request returned status %d: %s", resp.StatusCode, msg), nil)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errs.EmbedderError("decode embed response", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, errs.EmbedderError(
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)), nil)
	}
	if e.dims > 0 {
		for _, vec := range result.Embeddings {
			if len(vec) != e.dims {
				return nil, errs.New(errs.ErrCodeDimensionMismatch,
					fmt.Sprintf("model returned %d dimensions, expected %d", len(vec), e.dims), nil)
			}
		}
	}

	return result.Embeddings, nil
}

func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vec, err := e.Embed(ctx, "dimension detection")
	if err != nil {
		return 0, err
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("probe embedding is empty")
	}
	return len(vec), nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dims }

func (e *OllamaEmbedder) ModelName() string { return e.config.Model }

// Available checks the Ollama tags endpoint.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (e *OllamaEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
