// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

// Package remotestore talks to the shared backend's REST query interface:
// select by equality filter, upsert with a conflict target, delete by
// equality filter, and token refresh. Every table operation is routed
// through a TableResolver so remote-side renames degrade gracefully, and
// upserts tolerate column-level schema drift by stripping unknown columns.
package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// MaxDriftRetries bounds how many unknown columns one upsert will strip
// before giving up on the row.
const MaxDriftRetries = 10

// Config holds connection settings for the remote backend.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration       // per-request bound; a hung remote must not stall the sync queue
	Aliases map[string][]string // logical table -> historical remote names
}

// DefaultConfig returns a config with conservative timeouts.
func DefaultConfig(baseURL, apiKey string) *Config {
	return &Config{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 30 * time.Second,
	}
}

// Client executes fetch/upsert/delete against the remote backend.
type Client struct {
	HTTP     *http.Client
	Resolver *TableResolver
	config   *Config
	logger   *slog.Logger
}

// NewClient creates a remote store client.
func NewClient(config *Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTP:     &http.Client{Timeout: timeout},
		Resolver: NewTableResolver(config.Aliases),
		config:   config,
		logger:   logger,
	}
}

// FetchByUser returns all remote rows of a table owned by the user.
func (c *Client) FetchByUser(ctx context.Context, table, userID, token string) ([]map[string]any, error) {
	var rows []map[string]any
	err := c.withTable(ctx, table, func(actual string) error {
		endpoint := fmt.Sprintf("%s/rest/v1/%s?select=*&user_id=eq.%s",
			c.config.BaseURL, actual, url.QueryEscape(userID))
		rows = nil
		return c.doJSON(ctx, http.MethodGet, endpoint, token, nil, nil, &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	return rows, nil
}

// Upsert writes one row keyed on id. When the remote rejects a column it
// does not know, the column is stripped from the payload and the write is
// retried, so local-only fields never block a push against an older remote
// schema. Returns the row as the remote stored it when the backend echoes
// a representation, or the sent payload otherwise.
func (c *Client) Upsert(ctx context.Context, table string, row map[string]any, token string) (map[string]any, error) {
	var stored map[string]any
	err := c.withTable(ctx, table, func(actual string) error {
		result, err := c.upsertWithDrift(ctx, actual, row, token)
		if err != nil {
			return err
		}
		stored = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", table, err)
	}
	return stored, nil
}

func (c *Client) upsertWithDrift(ctx context.Context, actual string, row map[string]any, token string) (map[string]any, error) {
	payload := make(map[string]any, len(row))
	for k, v := range row {
		payload[k] = v
	}
	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=id", c.config.BaseURL, actual)
	headers := map[string]string{
		"Prefer": "return=representation,resolution=merge-duplicates",
	}

	for attempt := 0; attempt < MaxDriftRetries; attempt++ {
		var out []map[string]any
		err := c.doJSON(ctx, http.MethodPost, endpoint, token, []any{payload}, headers, &out)
		if err == nil {
			if len(out) > 0 {
				return out[0], nil
			}
			return payload, nil
		}
		if IsColumnNotFound(err) {
			column := OffendingColumn(err)
			if _, present := payload[column]; column != "" && present {
				c.logger.Debug("stripping unknown remote column",
					"table", actual, "column", column)
				delete(payload, column)
				continue
			}
		}
		return nil, err
	}
	return nil, fmt.Errorf("schema drift retries exhausted after %d attempts", MaxDriftRetries)
}

// Delete removes one row by id and owner. A row that is already gone counts
// as success, so deletes are idempotent across retried cycles.
func (c *Client) Delete(ctx context.Context, table, id, userID, token string) error {
	err := c.withTable(ctx, table, func(actual string) error {
		endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s&user_id=eq.%s",
			c.config.BaseURL, actual, url.QueryEscape(id), url.QueryEscape(userID))
		err := c.doJSON(ctx, http.MethodDelete, endpoint, token, nil, nil, nil)
		if err != nil && IsRowNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	endpoint := c.config.BaseURL + "/auth/v1/token?grant_type=refresh_token"
	body := map[string]string{"refresh_token": refreshToken}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
		User         struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, "", body, nil, &resp); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh session: empty access token in response")
	}
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
		UserID:       resp.User.ID,
	}, nil
}

// withTable runs fn with each candidate remote name until one is accepted.
// Only table-not-found moves on to the next candidate; any other error (or
// a success) settles the logical name immediately.
func (c *Client) withTable(ctx context.Context, logical string, fn func(actual string) error) error {
	var notFound error
	for _, candidate := range c.Resolver.Candidates(logical) {
		err := fn(candidate)
		if err == nil {
			if resolved, ok := c.Resolver.Resolved(logical); !ok || resolved != candidate {
				c.logger.Debug("resolved remote table", "logical", logical, "actual", candidate)
			}
			c.Resolver.Remember(logical, candidate)
			return nil
		}
		if IsTableNotFound(err) {
			notFound = err
			continue
		}
		return err
	}
	if notFound == nil {
		notFound = &APIError{
			StatusCode: 404,
			Code:       codeUndefinedTable,
			Message:    fmt.Sprintf("relation %q does not exist", logical),
		}
	}
	return notFound
}

// doJSON performs one HTTP round trip with the standard headers, decoding a
// JSON success body into out and failure bodies into *APIError.
func (c *Client) doJSON(ctx context.Context, method, endpoint, token string, body any, headers map[string]string, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("apikey", c.config.APIKey)
	if token == "" {
		token = c.config.APIKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" && apiErr.Code == "" {
		apiErr.Message = string(bytes.TrimSpace(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
