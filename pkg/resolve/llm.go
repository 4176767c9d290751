package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// ErrMalformedResponse indicates the LLM broke the response contract. The
// resolver treats it the same as the collaborator being unavailable.
var ErrMalformedResponse = errors.New("resolve: malformed llm response")

// NormalizeRequest is the request contract of the LLM collaborator.
type NormalizeRequest struct {
	Transcripts []string          `json:"transcripts"`
	Catalog     []string          `json:"catalog"`
	Hints       map[string]string `json:"hints,omitempty"`
}

// NormalizeResult is the collaborator's verdict. An empty Site means the
// model matched nothing in the catalog.
type NormalizeResult struct {
	Site       string
	Confidence float64
}

// Normalizer is the LLM collaborator consulted for low-confidence
// resolutions.
type Normalizer interface {
	Normalize(ctx context.Context, req NormalizeRequest) (NormalizeResult, error)
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultModel    = "gpt-4o-mini"
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"

	// DefaultTimeout bounds a single escalation round trip. Escalation
	// sits on the voice interaction path, so it degrades rather than
	// waits.
	DefaultTimeout = 5 * time.Second
)

// Config controls the LLM collaborator client.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration

	// HTTPClient overrides the default retrying client, mainly for tests.
	HTTPClient httpClient
}

// Client is an OpenAI-compatible chat-completions implementation of
// Normalizer.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	client   httpClient
}

// NewClient builds a Client from cfg, filling in defaults for everything
// but the API key.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("resolve: llm escalation requires an API key")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = 1
		rc.Logger = nil
		client = rc.StandardClient()
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		timeout:  timeout,
		client:   client,
	}, nil
}

// Normalize asks the model to pick the catalog site the transcripts most
// plausibly refer to. The call is bounded by the configured timeout on top
// of whatever deadline ctx already carries.
func (c *Client) Normalize(ctx context.Context, nreq NormalizeRequest) (NormalizeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(nreq)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("resolve: failed to encode llm request: %w", err)
	}

	reqBody := openAIChatRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
		Temperature:    0,
		ResponseFormat: openAIResponseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("resolve: failed to encode llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("resolve: failed to build llm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("resolve: llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErrResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErrResp)
		if apiErrResp.Error.Message != "" {
			return NormalizeResult{}, fmt.Errorf("resolve: llm request failed: %s", apiErrResp.Error.Message)
		}
		return NormalizeResult{}, fmt.Errorf("resolve: llm request failed with HTTP %d", resp.StatusCode)
	}

	var apiResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return NormalizeResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(apiResp.Choices) == 0 {
		return NormalizeResult{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	return parseNormalizeResult(strings.TrimSpace(apiResp.Choices[0].Message.Content))
}

// parseNormalizeResult validates the strict response contract: exactly
// {"site": string|null, "confidence": number in [0,1]}. Any deviation is
// ErrMalformedResponse.
func parseNormalizeResult(raw string) (NormalizeResult, error) {
	if !gjson.Valid(raw) {
		return NormalizeResult{}, fmt.Errorf("%w: not valid json", ErrMalformedResponse)
	}

	root := gjson.Parse(raw)
	if !root.IsObject() {
		return NormalizeResult{}, fmt.Errorf("%w: not a json object", ErrMalformedResponse)
	}

	fields := root.Map()
	if len(fields) != 2 {
		return NormalizeResult{}, fmt.Errorf("%w: expected exactly site and confidence", ErrMalformedResponse)
	}

	site, ok := fields["site"]
	if !ok {
		return NormalizeResult{}, fmt.Errorf("%w: site field missing", ErrMalformedResponse)
	}
	confidence, ok := fields["confidence"]
	if !ok {
		return NormalizeResult{}, fmt.Errorf("%w: confidence field missing", ErrMalformedResponse)
	}

	var out NormalizeResult
	switch site.Type {
	case gjson.Null:
		out.Site = ""
	case gjson.String:
		out.Site = site.String()
	default:
		return NormalizeResult{}, fmt.Errorf("%w: site must be a string or null", ErrMalformedResponse)
	}

	if confidence.Type != gjson.Number {
		return NormalizeResult{}, fmt.Errorf("%w: confidence must be a number", ErrMalformedResponse)
	}
	out.Confidence = confidence.Float()
	if out.Confidence < 0 || out.Confidence > 1 {
		return NormalizeResult{}, fmt.Errorf("%w: confidence out of range", ErrMalformedResponse)
	}

	return out, nil
}

const systemPrompt = `You match a spoken phrase to one site name from a catalog.

The user message is JSON:
{"transcripts": ["raw spoken text"], "catalog": ["site", ...], "hints": {"normalized": "cleaned text"}}

Rules:
- Pick the single catalog entry the speaker most plausibly meant. Consider
  misspellings, spacing, phonetic confusion and partial names.
- "site" must be copied verbatim from the catalog. Never invent a site.
- If nothing in the catalog plausibly matches, use null for "site".
- "confidence" is how sure you are, from 0 to 1.

Return ONLY JSON following this schema:
{"site": "catalog entry or null", "confidence": 0.0}`

type openAIChatRequest struct {
	Model          string               `json:"model"`
	Messages       []openAIMessage      `json:"messages"`
	Temperature    float64              `json:"temperature"`
	ResponseFormat openAIResponseFormat `json:"response_format"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
