package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lsanches/bico/internal/wire"
)

// Fetcher is the one-shot REST pull used when the push channel has not
// hydrated a conversation in time.
type Fetcher interface {
	FetchMessages(ctx context.Context, conversationID wire.ID) ([]wire.Message, error)
}

// FetchError wraps a failed fallback pull. It is non-fatal: the
// conversation stays push-only.
type FetchError struct {
	ConversationID wire.ID
	Err            error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fallback fetch for conversation %s: %v", e.ConversationID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPFetcher pulls messages from the marketplace REST API. The endpoint
// is read-only and idempotent, so retries by a future caller are safe.
type HTTPFetcher struct {
	client     *http.Client
	baseURL    string
	credential string
}

// NewHTTPFetcher creates a fetcher against the given REST base URL.
func NewHTTPFetcher(baseURL, credential string) *HTTPFetcher {
	return &HTTPFetcher{
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		credential: credential,
	}
}

// FetchMessages performs GET /messages/{conversationId}.
func (f *HTTPFetcher) FetchMessages(ctx context.Context, conversationID wire.ID) ([]wire.Message, error) {
	endpoint := fmt.Sprintf("%s/messages/%s", f.baseURL, url.PathEscape(conversationID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{ConversationID: conversationID, Err: err}
	}
	if f.credential != "" {
		req.Header.Set("Authorization", "Bearer "+f.credential)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{ConversationID: conversationID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			ConversationID: conversationID,
			Err:            fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var payload struct {
		Messages []wire.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &FetchError{ConversationID: conversationID, Err: err}
	}
	return payload.Messages, nil
}
