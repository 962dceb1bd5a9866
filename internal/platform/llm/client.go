package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

type Config struct {
	BaseURL             string
	APIKey              string
	ChatCompletionsPath string
	ImagesPath          string
	Timeout             time.Duration
	MaxRetries          int
	// InitialBackoff is doubled after every failed attempt.
	InitialBackoff time.Duration
}

type HTTPClient struct {
	log *logger.Logger

	baseURL   string
	apiKey    string
	chatPath  string
	imagePath string

	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration

	httpClient *http.Client
}

func New(cfg Config, log *logger.Logger) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("llm: base_url required")
	}
	if log == nil {
		return nil, errors.New("llm: logger required")
	}

	chatPath := strings.TrimSpace(cfg.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = "/v1/chat/completions"
	}
	imagePath := strings.TrimSpace(cfg.ImagesPath)
	if imagePath == "" {
		imagePath = "/v1/images/generations"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &HTTPClient{
		log:            log.With("service", "LLMClient"),
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		chatPath:       chatPath,
		imagePath:      imagePath,
		timeout:        timeout,
		maxRetries:     maxRetries,
		initialBackoff: backoff,
		httpClient:     &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg Config, log *logger.Logger, httpClient *http.Client) (*HTTPClient, error) {
	c, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

// ---------------- Chat completions ----------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	msgs := toChatMessages(req.Messages)
	if len(msgs) == 0 {
		return "", errors.New("llm: no messages")
	}

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	if req.JSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	start := time.Now()
	var lastErr error
	backoff := c.initialBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff); err != nil {
				return "", err
			}
			backoff *= 2
		}

		var resp chatCompletionResponse
		err := c.doJSON(ctx, c.chatPath, body, &resp)
		if err != nil {
			lastErr = err
			if !retryable(err) {
				break
			}
			c.log.Warn("chat completion attempt failed", "model", req.Model, "attempt", attempt+1, "error", err)
			continue
		}

		text := extractChatText(resp)
		if strings.TrimSpace(text) == "" {
			lastErr = ErrEmptyCompletion
			continue
		}
		if req.JSON {
			clean := SanitizeJSONText(text)
			if err := validateJSONObject(clean); err != nil {
				lastErr = err
				c.log.Warn("chat completion returned invalid json", "model", req.Model, "attempt", attempt+1, "error", err)
				continue
			}
			text = clean
		}

		c.log.Debug("chat completion ok", "model", req.Model, "duration_ms", time.Since(start).Milliseconds(), "chars", len(text))
		return text, nil
	}
	if lastErr == nil {
		lastErr = errors.New("llm: generation failed")
	}
	return "", lastErr
}

// ---------------- Images ----------------

type imageGenerationRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n"`
}

type imageGenerationResponse struct {
	Data []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

func (c *HTTPClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if c.apiKey == "" {
		return ImageResult{}, ErrNoAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return ImageResult{}, errors.New("llm: image prompt required")
	}
	body := imageGenerationRequest{Model: req.Model, Prompt: prompt, N: 1}
	if req.Width > 0 && req.Height > 0 {
		body.Size = fmt.Sprintf("%dx%d", req.Width, req.Height)
	}

	var resp imageGenerationResponse
	if err := c.doJSON(ctx, c.imagePath, body, &resp); err != nil {
		return ImageResult{}, err
	}
	if len(resp.Data) == 0 {
		return ImageResult{}, errors.New("llm: image response had no data")
	}
	d := resp.Data[0]
	if u := strings.TrimSpace(d.URL); u != "" {
		return ImageResult{URL: u}, nil
	}
	if d.B64JSON == "" {
		return ImageResult{}, errors.New("llm: image response had neither url nor bytes")
	}
	raw, err := base64.StdEncoding.DecodeString(d.B64JSON)
	if err != nil {
		return ImageResult{}, fmt.Errorf("llm: decode image: %w", err)
	}
	return ImageResult{Bytes: raw, MimeType: http.DetectContentType(raw)}, nil
}

// ---------------- helpers ----------------

func toChatMessages(messages []Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := strings.TrimSpace(m.Role)
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, chatMessage{Role: role, Content: content})
	}
	return out
}

func extractChatText(resp chatCompletionResponse) string {
	for _, c := range resp.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			return c.Message.Content
		}
		if strings.TrimSpace(c.Text) != "" {
			return c.Text
		}
	}
	return ""
}

// SanitizeJSONText strips a surrounding ```json fence, if any.
func SanitizeJSONText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func validateJSONObject(s string) error {
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return fmt.Errorf("invalid json object: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *HTTPClient) doJSON(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
