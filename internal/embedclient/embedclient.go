// Package embedclient provides the Embedding Client (C1): batched calls
// to an OpenAI-compatible embeddings endpoint. Grounded on
// original_source's LocalApiEmbeddings (batching, per-batch logging,
// raise-on-failure semantics), reimplemented as a small Go HTTP client
// in the teacher's style of a thin wrapper struct with an explicit
// constructor and one responsibility per method.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/datcomagent/internal/retry"
	"github.com/BTreeMap/datcomagent/internal/workflowstate"
)

const defaultRetryAttempts = 3

// Client embeds texts against an OpenAI-compatible "/embeddings"
// endpoint, batching requests and caching the response dimension.
type Client struct {
	apiBase   string
	apiKey    string
	model     string
	batchSize int
	http      *http.Client
	dim       int
}

// New creates an embedding client pointed at apiBase with apiKey, using
// model for every request and batching batchSize texts per call.
func New(apiBase, apiKey, model string, batchSize int, httpClient *http.Client) *Client {
	if batchSize <= 0 {
		batchSize = 8
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		apiBase:   strings.TrimRight(apiBase, "/"),
		apiKey:    apiKey,
		model:     model,
		batchSize: batchSize,
		http:      httpClient,
	}
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedDocuments embeds every text in texts, batching internally, and
// returns one vector per input text in the same order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32
	runDim := 0
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]
		slog.Debug("embedclient.EmbedDocuments: processing batch", "start", i, "size", len(batch))

		var vectors [][]float32
		err := retry.Do(ctx, "embedclient.EmbedDocuments", defaultRetryAttempts, func() error {
			v, err := c.embedBatch(ctx, batch)
			if err != nil {
				return err
			}
			vectors = v
			return nil
		})
		if err != nil {
			return nil, workflowstate.EmbedError("embedclient.EmbedDocuments", err)
		}
		if len(vectors) != len(batch) {
			return nil, workflowstate.EmbedError("embedclient.EmbedDocuments", fmt.Errorf("embeddings backend returned %d vectors for %d inputs", len(vectors), len(batch)))
		}
		for _, v := range vectors {
			if runDim == 0 {
				runDim = len(v)
				continue
			}
			if len(v) != runDim {
				return nil, workflowstate.EmbedError("embedclient.EmbedDocuments", fmt.Errorf("embeddings backend returned a %d-dimensional vector, expected %d to match the first vector seen", len(v), runDim))
			}
		}
		all = append(all, vectors...)
	}
	if len(all) > 0 {
		c.dim = len(all[0])
	}
	return all, nil
}

// EmbedQuery embeds a single text, as a convenience over EmbedDocuments.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, workflowstate.EmbedError("embedclient.EmbedQuery", fmt.Errorf("embeddings backend returned no vectors"))
	}
	return vecs[0], nil
}

// Dimension returns the vector dimension observed on the last
// successful call, or 0 if no call has succeeded yet.
func (c *Client) Dimension() int { return c.dim }

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Model:          c.model,
		Input:          texts,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings backend returned status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}

	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
