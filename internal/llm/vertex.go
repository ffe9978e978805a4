package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/jimdaga/cost-model-service/internal/config"
)

const providerVertex = "vertex"

// VertexClient sends prompts to a Gemini model on Vertex AI.
type VertexClient struct {
	client    *genai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewVertexClient opens a Vertex AI client for the configured project.
func NewVertexClient(ctx context.Context, cfg config.LLMConfig) (*VertexClient, error) {
	if cfg.VertexProjectID == "" || cfg.VertexRegion == "" {
		return nil, fmt.Errorf("vertex project and region are required")
	}

	client, err := genai.NewClient(ctx, cfg.VertexProjectID, cfg.VertexRegion)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &VertexClient{
		client:    client,
		model:     cfg.VertexModel,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}, nil
}

// Complete generates content at temperature zero and joins the text parts
// of the first candidate.
func (c *VertexClient) Complete(ctx context.Context, req Request) (string, error) {
	text, err := c.complete(ctx, req)
	observe(providerVertex, req.Purpose, err)
	if err != nil {
		return "", &Error{Provider: providerVertex, Purpose: req.Purpose, Err: err}
	}
	return text, nil
}

func (c *VertexClient) complete(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0)
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	// Gemini accepts arrays under the JSON MIME type as well as objects
	model.ResponseMIMEType = "application/json"
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return CleanText(sb.String()), nil
}

// Close releases the underlying client.
func (c *VertexClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
