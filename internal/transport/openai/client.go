package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
)

// Operation labels for transport metrics.
const (
	opEmbed      = "embed"
	opEmbedBatch = "embed_batch"
	opRewrite    = "rewrite"
	opHyde       = "hypothetical_answer"
	opJudge      = "judge_relevance"
)

// Client talks to an OpenAI-compatible API (e.g. Nebius) for embeddings,
// query expansion, and relevance judging.
type Client struct {
	api            *openai.Client
	embeddingModel openai.EmbeddingModel
	chatModel      string
	dimensions     int
	user           string
	logger         *zap.Logger
}

// Config holds the LLM provider settings.
type Config struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Dimensions     int
	User           string
	Logger         *zap.Logger
}

// New creates an OpenAI-compatible LLM client.
func New(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:            openai.NewClientWithConfig(clientCfg),
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		chatModel:      cfg.ChatModel,
		dimensions:     cfg.Dimensions,
		user:           cfg.User,
		logger:         cfg.Logger,
	}
}

// Embed vectorizes a single text for the dense channel.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, opEmbed, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch vectorizes a batch of texts in one request, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, opEmbedBatch, texts)
}

func (c *Client) embed(ctx context.Context, op string, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           c.user,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	model := string(c.embeddingModel)
	start := time.Now()

	resp, err := c.api.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(op, model, "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		metrics.LLMRequestsTotal.WithLabelValues(op, model, "error").Inc()
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d: %w",
			len(texts), len(resp.Data), domain.ErrLLMUnavailable)
	}

	metrics.LLMRequestsTotal.WithLabelValues(op, model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(op, model).Observe(duration.Seconds())
	recordTokenUsage(op, model, resp.Usage.PromptTokens, 0, resp.Usage.TotalTokens)

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range: %w",
				d.Index, domain.ErrLLMUnavailable)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

const rewriteSystemPrompt = `You rewrite the latest shopping question into a ` +
	`standalone search query. Resolve pronouns and references using the ` +
	`conversation history. Keep product names, brands, and constraints. ` +
	`Reply with the rewritten query only.`

// Rewrite resolves the query against conversation history into a standalone
// search query.
func (c *Client) Rewrite(ctx context.Context, query string, history []string) (string, error) {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Conversation history:\n")
		for _, turn := range history {
			sb.WriteString("- ")
			sb.WriteString(turn)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Latest question: ")
	sb.WriteString(query)

	return c.complete(ctx, opRewrite, rewriteSystemPrompt, sb.String())
}

const hydeSystemPrompt = `Write a short, plausible answer to the shopping ` +
	`question as if you were a knowledgeable forum user recommending specific ` +
	`products. Two or three sentences. Mention concrete product names and ` +
	`reasons. Do not say you are unsure.`

// HypotheticalAnswer generates a hypothetical forum-style answer used as a
// second retrieval query (HyDE).
func (c *Client) HypotheticalAnswer(ctx context.Context, query string) (string, error) {
	return c.complete(ctx, opHyde, hydeSystemPrompt, query)
}

const judgeSystemPrompt = `You grade how relevant each passage is to a ` +
	`shopping question. Score each passage from 0.0 (irrelevant) to 1.0 ` +
	`(directly answers the question with specific product advice). Reply with ` +
	`a JSON array of numbers only, one score per passage, in the given order.`

// JudgeRelevance scores each passage against the query in [0, 1].
func (c *Client) JudgeRelevance(ctx context.Context, query string, texts []string) ([]float64, error) {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	for i, text := range texts {
		fmt.Fprintf(&sb, "Passage %d:\n%s\n\n", i+1, text)
	}

	raw, err := c.complete(ctx, opJudge, judgeSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	scores, err := parseScores(raw)
	if err != nil {
		return nil, fmt.Errorf("parse relevance scores: %w", err)
	}
	if len(scores) != len(texts) {
		return nil, fmt.Errorf("relevance score count mismatch: sent %d, got %d",
			len(texts), len(scores))
	}
	return scores, nil
}

func (c *Client) complete(ctx context.Context, op, system, user string) (string, error) {
	start := time.Now()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		User: c.user,
	})

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(op, c.chatModel, "error").Inc()
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(op, c.chatModel, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrLLMUnavailable)
	}

	metrics.LLMRequestsTotal.WithLabelValues(op, c.chatModel, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(op, c.chatModel).Observe(duration.Seconds())
	recordTokenUsage(op, c.chatModel,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func recordTokenUsage(op, model string, prompt, completion, total int) {
	if total <= 0 {
		return
	}
	metrics.LLMTokensTotal.WithLabelValues(op, model, "prompt").Add(float64(prompt))
	if completion > 0 {
		metrics.LLMTokensTotal.WithLabelValues(op, model, "completion").Add(float64(completion))
	}
	metrics.LLMTokensTotal.WithLabelValues(op, model, "total").Add(float64(total))
}

// parseScores extracts a JSON array of floats from a completion, tolerating
// surrounding prose or markdown fences.
func parseScores(raw string) ([]float64, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in %q", truncate(raw, 120))
	}

	var scores []float64
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}
	return scores, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrLLMUnavailable for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrLLMUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("LLM API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("LLM API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("LLM API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("LLM request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
