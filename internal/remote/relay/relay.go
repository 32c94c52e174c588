// Package relay implements the remote adapter over the script relay
// endpoint. The relay fronts the same spreadsheet with a single POST
// action API, so only the relay holds Google credentials and this
// process needs nothing but the relay URL and shared secret.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"conti/internal/core"
	"conti/internal/remote"
)

type Client struct {
	httpClient *http.Client
}

// Ensure interface conformance
var _ remote.Adapter = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the request wrapper every relay action uses.
type envelope struct {
	Action  string          `json:"action"`
	Secret  string          `json:"secret"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// reply is the relay response wrapper. The relay host cannot always
// control HTTP status codes, so authorization failures may arrive as
// ok=false with an "unauthorized" error instead of a 401.
type reply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type appendPayload struct {
	Kind core.Kind    `json:"kind"`
	Rows []remote.Row `json:"rows"`
}

type markDeletedPayload struct {
	Kind core.Kind `json:"kind"`
	ID   string    `json:"id"`
}

type rowsPayload struct {
	Rows []remote.Row `json:"rows"`
}

func (c *Client) FetchSnapshot(ctx context.Context, creds remote.Credentials) (core.Snapshot, error) {
	var cols remote.Collections
	if err := c.call(ctx, creds, "fetchSnapshot", nil, &cols); err != nil {
		return core.Snapshot{}, err
	}
	return remote.DecodeCollections(cols), nil
}

func (c *Client) AppendEntities(ctx context.Context, creds remote.Credentials, kind core.Kind, rows []remote.Row) error {
	if len(rows) == 0 {
		return nil
	}
	return c.call(ctx, creds, "appendEntities", appendPayload{Kind: kind, Rows: rows}, nil)
}

func (c *Client) MarkDeleted(ctx context.Context, creds remote.Credentials, kind core.Kind, id string) error {
	return c.call(ctx, creds, "markDeleted", markDeletedPayload{Kind: kind, ID: id}, nil)
}

func (c *Client) SaveConfig(ctx context.Context, creds remote.Credentials, s core.Settings) error {
	return c.call(ctx, creds, "saveConfig", rowsPayload{Rows: remote.EncodeConfig(s)}, nil)
}

func (c *Client) SaveBudgets(ctx context.Context, creds remote.Credentials, b core.Budgets) error {
	return c.call(ctx, creds, "saveBudgets", rowsPayload{Rows: remote.EncodeBudgets(b)}, nil)
}

func (c *Client) SaveCategories(ctx context.Context, creds remote.Credentials, cats []string) error {
	return c.call(ctx, creds, "saveCategories", rowsPayload{Rows: remote.EncodeCategories(cats)}, nil)
}

func (c *Client) call(ctx context.Context, creds remote.Credentials, action string, payload any, out any) error {
	url := strings.TrimSpace(creds.RelayURL)
	if url == "" {
		return errors.New("missing relay url in settings")
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", action, err)
		}
		raw = b
	}
	body, err := json.Marshal(envelope{Action: action, Secret: creds.RelaySecret, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("relay %s: %w", action, remote.ErrUnauthorized)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("relay %s: status %d", action, resp.StatusCode)
	}

	var r reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decode relay %s response: %w", action, err)
	}
	if !r.OK {
		if strings.EqualFold(strings.TrimSpace(r.Error), "unauthorized") {
			return fmt.Errorf("relay %s: %w", action, remote.ErrUnauthorized)
		}
		return fmt.Errorf("relay %s: %s", action, r.Error)
	}
	if out != nil {
		if len(r.Data) == 0 {
			return fmt.Errorf("relay %s: empty response data", action)
		}
		if err := json.Unmarshal(r.Data, out); err != nil {
			return fmt.Errorf("decode relay %s data: %w", action, err)
		}
	}
	return nil
}
