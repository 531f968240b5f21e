// Package llm wraps the OpenAI-compatible API used for embeddings,
// text generation, and relevance judgments.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/quarrylabs/quarry/internal/domain"
)

const (
	// DefaultEmbeddingModel is the model used when none is configured.
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimensions is the vector width of the default model.
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrNoAPIKey is returned when the API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
	// ErrEmptyInput is returned when an embedding request has no texts
	ErrEmptyInput = errors.New("no texts to embed")
)

// Config holds client construction options.
type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingDimensions int
	// RequestsPerSecond rate-limits outbound calls client-side.
	// Zero disables the limiter.
	RequestsPerSecond float64
}

// Client is the single adapter for every external model call the
// engine makes. Safe for concurrent use.
type Client struct {
	api        *openai.Client
	limiter    *rate.Limiter
	dimensions int
}

// NewClient creates a client with explicit configuration.
func NewClient(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		api:        openai.NewClientWithConfig(apiCfg),
		limiter:    limiter,
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a client using the OPENAI_API_KEY environment variable.
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(Config{APIKey: apiKey}), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// EmbedBatch embeds texts in one API call, preserving input order.
// Rate-limit and server errors come back as transient.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.NewDomainError(domain.ErrCodeInternalError,
			fmt.Sprintf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data)))
	}

	// Responses carry an index; stitch by it rather than trusting order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, domain.NewDomainError(domain.ErrCodeInternalError, "embedding response index out of range")
		}
		if len(d.Embedding) != c.dimensions {
			return nil, domain.NewDomainError(domain.ErrCodeInternalError,
				fmt.Sprintf("embedding has %d dimensions, expected %d", len(d.Embedding), c.dimensions))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the expected embedding vector width.
func (c *Client) Dimensions() int { return c.dimensions }

// Generate performs one chat completion in JSON mode and returns the
// raw message content. Callers validate the payload against their own
// schema.
func (c *Client) Generate(ctx context.Context, model, system, user string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewDomainError(domain.ErrCodeMalformedResponse, "completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Judgment is a binary relevance verdict with the log-probabilities of
// the two labels.
type Judgment struct {
	Label      string
	YesLogProb float64
	NoLogProb  float64
}

const judgeSystemPrompt = `You judge whether a passage is relevant to a query. Answer with exactly one word: yes or no.`

// Judge asks the model whether passage is relevant to query, constrained
// to a yes/no answer, and extracts the label log-probabilities from the
// response's top-logprob list.
func (c *Client) Judge(ctx context.Context, model, query, passage string) (Judgment, error) {
	if err := c.wait(ctx); err != nil {
		return Judgment{}, err
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Query: %s\n\nPassage: %s\n\nRelevant?", query, passage)},
		},
		MaxTokens:   2,
		Temperature: 0,
		LogProbs:    true,
		TopLogProbs: 5,
	})
	if err != nil {
		return Judgment{}, classify(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].LogProbs == nil || len(resp.Choices[0].LogProbs.Content) == 0 {
		return Judgment{}, domain.NewDomainError(domain.ErrCodeMalformedResponse, "judgment response carries no logprobs")
	}
	return judgmentFromLogProbs(resp.Choices[0].LogProbs.Content[0])
}

// judgmentFromLogProbs reads the yes/no log-probabilities from the first
// generated token's top-logprob candidates. A missing label gets the
// complement of the found one; both missing is a malformed response.
func judgmentFromLogProbs(first openai.LogProb) (Judgment, error) {
	yesLP, noLP := math.Inf(-1), math.Inf(-1)
	yesSeen, noSeen := false, false

	consider := func(token string, lp float64) {
		switch normalizeLabel(token) {
		case "yes":
			if !yesSeen || lp > yesLP {
				yesLP, yesSeen = lp, true
			}
		case "no":
			if !noSeen || lp > noLP {
				noLP, noSeen = lp, true
			}
		}
	}

	consider(first.Token, first.LogProb)
	for _, cand := range first.TopLogProbs {
		consider(cand.Token, cand.LogProb)
	}

	switch {
	case !yesSeen && !noSeen:
		return Judgment{}, domain.NewDomainError(domain.ErrCodeMalformedResponse,
			fmt.Sprintf("judgment token %q is neither yes nor no", first.Token))
	case !noSeen:
		noLP = complementLogProb(yesLP)
	case !yesSeen:
		yesLP = complementLogProb(noLP)
	}

	label := "no"
	if yesLP >= noLP {
		label = "yes"
	}
	return Judgment{Label: label, YesLogProb: yesLP, NoLogProb: noLP}, nil
}

func complementLogProb(lp float64) float64 {
	p := math.Exp(lp)
	if p >= 1 {
		p = 1 - 1e-10
	}
	return math.Log(1 - p)
}

func normalizeLabel(token string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(token), `".,!`))
}

// classify maps API failures onto the engine's error taxonomy. Rate
// limits and server-side errors are transient; everything else is not.
// go-openai does not expose response headers on its error types, so a
// 429's Retry-After value is lost here and retries fall back to the
// computed backoff schedule instead of a server-supplied hint.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return domain.Transient(err)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500 {
			return domain.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}
	return err
}
