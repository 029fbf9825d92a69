// Package assist wraps an OpenAI-compatible API for the two optional
// enrichments: analysis narratives and text embeddings. The engine
// works fully without it.
package assist

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harborops/causeway/internal/config"
	"github.com/harborops/causeway/pkg/models"
)

// embedCacheLimit bounds the in-process embedding cache. Incident and
// case descriptions repeat heavily across analyses, so a small cache
// absorbs most of the API traffic.
const embedCacheLimit = 512

// Client calls the assist API with a per-request timeout.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration

	mu    sync.Mutex
	cache map[uint64][]float32
}

// New builds a Client from configuration. Returns nil when no API key
// is configured; callers treat a nil client as "assist disabled".
func New(cfg *config.Config) *Client {
	if cfg.AssistAPIKey == "" {
		return nil
	}

	clientCfg := openai.DefaultConfig(cfg.AssistAPIKey)
	if cfg.AssistBaseURL != "" {
		clientCfg.BaseURL = cfg.AssistBaseURL
	}

	timeout := time.Duration(cfg.AssistTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		api:            openai.NewClientWithConfig(clientCfg),
		model:          cfg.AssistModel,
		embeddingModel: cfg.AssistEmbeddingModel,
		timeout:        timeout,
		cache:          make(map[uint64][]float32),
	}
}

const narrativeSystemPrompt = `You are a maritime operations analyst. Given an incident and ranked root-cause hypotheses, write a short plain-language summary for the duty officer: likely cause first, then the recommended next step. Three sentences maximum. Do not invent facts beyond the hypotheses.`

// Narrative asks the model for a short prose summary of the ranked
// hypotheses.
func (c *Client) Narrative(ctx context.Context, incidentText string, hypotheses []models.Hypothesis) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %s\n\nHypotheses:\n", incidentText)
	for i, h := range hypotheses {
		fmt.Fprintf(&b, "%d. [%.2f] %s", i+1, h.Confidence, h.Description)
		if h.RecommendedSolution != "" {
			fmt.Fprintf(&b, " (recommended: %s)", h.RecommendedSolution)
		}
		b.WriteString("\n")
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		MaxTokens:   300,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: narrativeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("narrative completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("narrative completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed returns one embedding vector per input text. Vectors are
// cached in-process keyed on the text, so repeated inputs do not hit
// the API again.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	c.mu.Lock()
	for i, text := range texts {
		if v, ok := c.cache[embedKey(text)]; ok {
			vectors[i] = v
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return vectors, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: missTexts,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(missTexts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(missTexts))
	}

	c.mu.Lock()
	for j, d := range resp.Data {
		vectors[missIdx[j]] = d.Embedding
		if len(c.cache) < embedCacheLimit {
			c.cache[embedKey(missTexts[j])] = d.Embedding
		}
	}
	c.mu.Unlock()

	return vectors, nil
}

func embedKey(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}
