// Package llm holds the thin clients for the two model microservices: the
// encoder (embeddings) and the model server (reply generation). Both degrade
// on failure — empty vectors, empty reply — so the chat flow stays alive when
// an upstream is down; callers that must distinguish check
// ErrUpstreamUnavailable.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"cybersync/internal/config"
	"cybersync/internal/models"
)

// ErrUpstreamUnavailable marks an upstream call that exhausted its retries.
var ErrUpstreamUnavailable = errors.New("upstream model service unavailable")

// Client talks to the encoder and model microservices.
type Client struct {
	encoderURL string
	modelURL   string

	httpClient *http.Client
	logger     *logrus.Logger

	embedTimeout    time.Duration
	generateTimeout time.Duration
	maxRetries      uint64
	backoffBase     time.Duration

	// Client-side cap on encoder traffic; ingestion can otherwise flood it
	// with one call per uploaded document.
	embedLimiter *rate.Limiter
}

// NewClient creates a client from the service configuration.
func NewClient(cfg *config.Config) *Client {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Client{
		encoderURL:      cfg.EncoderURL,
		modelURL:        cfg.ModelURL,
		httpClient:      &http.Client{},
		logger:          logger,
		embedTimeout:    cfg.EmbedTimeout,
		generateTimeout: cfg.GenerateTimeout,
		maxRetries:      uint64(cfg.MaxRetries),
		backoffBase:     cfg.BackoffBase,
		embedLimiter:    rate.NewLimiter(rate.Limit(cfg.EmbedRatePerSec), 1),
	}
}

type encodeRequest struct {
	Data []string `json:"data"`
}

type encodeResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one embedding per input text. On any failure it logs and
// returns nil — never an error — matching the "no grounding available"
// degradation contract.
func (c *Client) Embed(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}

	if err := c.embedLimiter.Wait(ctx); err != nil {
		return nil
	}

	body, err := c.post(ctx, c.encoderURL, encodeRequest{Data: texts}, c.embedTimeout)
	if err != nil {
		c.logger.WithError(err).Warn("encoder unavailable, returning empty embeddings")
		return nil
	}

	var resp encodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.WithError(err).Warn("encoder returned malformed response")
		return nil
	}
	return resp.Embeddings
}

type generateRequest struct {
	Context             []string               `json:"context"`
	ConversationHistory []models.HistoryTurn   `json:"conversation_history"`
	Prompt              models.Prompt          `json:"prompt"`
	Overrides           map[string]interface{} `json:"overrides"`
	Stream              bool                   `json:"stream,omitempty"`
}

type generateResponse struct {
	Reply string `json:"reply"`
}

// Generate performs one batch generation call and returns the reply text.
// Returns the empty string when the upstream is unreachable; the caller
// degrades to an ungrounded or apologetic reply.
func (c *Client) Generate(ctx context.Context, contexts []string, history []models.HistoryTurn, prompt models.Prompt, overrides map[string]interface{}) string {
	req := generateRequest{
		Context:             contexts,
		ConversationHistory: history,
		Prompt:              prompt,
		Overrides:           overrides,
	}

	body, err := c.post(ctx, c.modelURL, req, c.generateTimeout)
	if err != nil {
		c.logger.WithError(err).Warn("model server unavailable, returning empty reply")
		return ""
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.WithError(err).Warn("model server returned malformed response")
		return ""
	}
	return resp.Reply
}

// StreamResult is the terminal summary of a streamed generation: the full
// accumulated reply plus the prompt's embedding, which the chat transaction
// attaches to the stored user turn.
type StreamResult struct {
	Reply      string    `json:"reply"`
	Embeddings []float32 `json:"embeddings"`
}

type streamEvent struct {
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Reply      string    `json:"reply"`
	Embeddings []float32 `json:"embeddings"`
}

// GenerateStream performs a streaming generation call. Each text increment is
// forwarded to onChunk as soon as it arrives; the return value carries the
// terminal summary. A non-nil error from onChunk (or ctx cancellation) stops
// consumption immediately and is returned to the caller.
//
// Streaming requests are not retried: increments may already have been
// forwarded.
func (c *Client) GenerateStream(ctx context.Context, contexts []string, history []models.HistoryTurn, prompt models.Prompt, overrides map[string]interface{}, onChunk func(string) error) (*StreamResult, error) {
	req := generateRequest{
		Context:             contexts,
		ConversationHistory: history,
		Prompt:              prompt,
		Overrides:           overrides,
		Stream:              true,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	result, err := consumeStream(ctx, resp.Body, onChunk)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// post sends one JSON POST with the retry policy: up to maxRetries attempts,
// exponential backoff from backoffBase. 5xx responses retry, 4xx do not.
func (c *Client) post(ctx context.Context, url string, payload interface{}, timeout time.Duration) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.backoffBase

	var body []byte
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}
