package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiTransport calls the Gemini generateContent API with one API key.
type GeminiTransport struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type GeminiOption func(*GeminiTransport)

func WithBaseURL(u string) GeminiOption {
	return func(g *GeminiTransport) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiTransport) { g.httpClient = c }
}

func NewGeminiTransport(apiKey, model string, timeout time.Duration, opts ...GeminiOption) *GeminiTransport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	g := &GeminiTransport{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultGeminiBaseURL,
		model:      normalizeModel(model),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	return strings.TrimPrefix(model, "models/")
}

func (g *GeminiTransport) Complete(ctx context.Context, req Request) (string, error) {
	if g.apiKey == "" {
		return "", NewError(KindAuthFailed, errors.New("gemini api key missing"))
	}

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Instruction}}}},
	}
	if req.ResponseMIME != "" {
		body.GenerationConfig = &generationConfig{ResponseMIMEType: req.ResponseMIME}
	}

	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	if err := g.doJSON(ctx, url, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		reason := "empty response from gemini"
		if resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return "", NewError(KindUnknown, errors.New(reason))
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (g *GeminiTransport) doJSON(ctx context.Context, url string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return NewError(KindUnknown, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return NewError(KindUnknown, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Classify(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := resp.Status
		if errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return Classify(resp.StatusCode, fmt.Errorf("gemini api error: %s", msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(KindUnknown, fmt.Errorf("decoding gemini response: %w", err))
	}
	return nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
