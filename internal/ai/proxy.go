package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ieltswriter/ieltswriter/internal/auth"
)

// ProxyTransport forwards instructions to an authenticated proxy endpoint
// that holds the shared key. The caller's bearer token is taken from ctx.
type ProxyTransport struct {
	url        string
	httpClient *http.Client
}

func NewProxyTransport(url string, timeout time.Duration) *ProxyTransport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ProxyTransport{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// proxyResponse mirrors the envelope served by ProxyHandler.
type proxyResponse struct {
	Data struct {
		Text string `json:"text"`
	} `json:"data"`
	Error string `json:"error"`
	Kind  Kind   `json:"kind"`
}

func (p *ProxyTransport) Complete(ctx context.Context, req Request) (string, error) {
	token := auth.BearerToken(ctx)
	if token == "" {
		return "", NewError(KindAuthFailed, errors.New("no bearer token for proxy call"))
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return "", NewError(KindUnknown, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(raw))
	if err != nil {
		return "", NewError(KindUnknown, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", Classify(0, err)
	}
	defer resp.Body.Close()

	var out proxyResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode >= 400 {
		cause := fmt.Errorf("proxy error: %s", resp.Status)
		if out.Error != "" {
			cause = fmt.Errorf("proxy error: %s", out.Error)
		}
		if out.Kind != "" {
			if _, known := messages[out.Kind]; known {
				return "", NewError(out.Kind, cause)
			}
		}
		return "", Classify(resp.StatusCode, cause)
	}
	if decodeErr != nil {
		return "", NewError(KindUnknown, fmt.Errorf("decoding proxy response: %w", decodeErr))
	}
	return out.Data.Text, nil
}
