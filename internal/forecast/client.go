// Package forecast talks to the external demand-forecasting engine and
// combines its output with local sales history.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"product-catalog/internal/products"
)

const (
	predictionsPath = "/predictions"
	maxErrorBody    = 512
)

var (
	ErrNotFound  = errors.New("forecast not found")
	ErrNoHistory = errors.New("no sales history to forecast from")
	// ErrEngine marks failures reaching or talking to the engine.
	ErrEngine = errors.New("forecast engine unavailable")
)

// StatusError is returned when the engine answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("forecast engine returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the engine over HTTP. Requests are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type refreshRequest struct {
	Category string                     `json:"category,omitempty"`
	Name     string                     `json:"name,omitempty"`
	History  []products.MonthlyQuantity `json:"history"`
}

// Predictions fetches the stored forecast series for key.
func (c *Client) Predictions(ctx context.Context, key products.Key) ([]products.MonthlyQuantity, error) {
	query := url.Values{}
	query.Set(key.Type, key.Value)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+predictionsPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get predictions: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, statusError(resp)
	}

	points := make([]products.MonthlyQuantity, 0)
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	return points, nil
}

// Refresh asks the engine to recompute the forecast for key from history.
func (c *Client) Refresh(ctx context.Context, key products.Key, history []products.MonthlyQuantity) error {
	body := refreshRequest{History: history}
	if key.Type == products.KeyTypeName {
		body.Name = key.Value
	} else {
		body.Category = key.Value
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictionsPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh predictions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
