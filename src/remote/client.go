// Package remote is the adapter boundary to the ClearVoice backend: the four
// record operations over the HTTP API plus the per-record push channel.
// Everything that crosses it is decoded into record values; raw payloads
// never leak past this package.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/clearvoice-app/clearvoice/src/notify"
	"github.com/clearvoice-app/clearvoice/src/record"
)

const defaultTimeout = 30 * time.Second

// ChangePayload is the wire form of a partial update: only set fields plus
// the record id and a fresh updatedAt.
type ChangePayload struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`

	Title         *string        `json:"title,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Suggestion    *string        `json:"suggestion,omitempty"`
	Rating        *int           `json:"rating,omitempty"`
	AttachmentRef *string        `json:"attachmentRef,omitempty"`
	Status        *record.Status `json:"status,omitempty"`
	Urgency       *int           `json:"urgency,omitempty"`
	InternalNotes *string        `json:"internalNotes,omitempty"`
	Replies       []record.Reply `json:"replies,omitempty"`
}

// Draft is the payload for creating a new record.
type Draft struct {
	Category      record.Category `json:"category"`
	Title         string          `json:"title,omitempty"`
	Description   string          `json:"description,omitempty"`
	Suggestion    string          `json:"suggestion,omitempty"`
	Rating        int             `json:"rating"`
	AttachmentRef string          `json:"attachmentRef,omitempty"`
}

// Client talks to the feedapi HTTP surface. It is stateless apart from the
// bearer token and safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Logger
}

func NewClient(baseURL, token string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// SetToken replaces the bearer token attached to subsequent calls.
func (c *Client) SetToken(token string) { c.token = token }

type apiError struct {
	Err string `json:"err"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: encode %s %s: %v", ErrTransport, method, path, err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read %s %s: %v", ErrTransport, method, path, err)
	}
	return resp.StatusCode, data, nil
}

// mapStatus turns a non-2xx response into the taxonomy the core consumes.
func mapStatus(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := ae.Err
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case status == http.StatusBadRequest,
		status == http.StatusConflict,
		status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrValidation, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrTransport, status, msg)
	}
}

// FetchRecord loads the authoritative snapshot for id. Transient failures
// (429/5xx) are retried with backoff; fetch is idempotent.
func (c *Client) FetchRecord(ctx context.Context, id string) (record.Record, error) {
	status, body, err := doWithRetry(ctx, 3, 500*time.Millisecond, func() (int, []byte, error) {
		return c.do(ctx, http.MethodGet, "/v1/records/"+id, nil)
	})
	if err != nil {
		return record.Record{}, err
	}
	if status != http.StatusOK {
		return record.Record{}, mapStatus(status, body)
	}
	return record.Decode(body)
}

// UpdateRecord sends a partial change and returns the authoritative
// post-update record.
func (c *Client) UpdateRecord(ctx context.Context, ch ChangePayload) (record.Record, error) {
	if ch.UpdatedAt.IsZero() {
		ch.UpdatedAt = time.Now().UTC()
	}
	status, body, err := c.do(ctx, http.MethodPatch, "/v1/records/"+ch.ID, ch)
	if err != nil {
		return record.Record{}, err
	}
	if status != http.StatusOK {
		return record.Record{}, mapStatus(status, body)
	}
	return record.Decode(body)
}

// DeleteRecord removes the record.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/v1/records/"+id, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return mapStatus(status, body)
	}
	return nil
}

// CreateRecord submits a new draft and returns the stored record.
func (c *Client) CreateRecord(ctx context.Context, d Draft) (record.Record, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/records", d)
	if err != nil {
		return record.Record{}, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return record.Record{}, mapStatus(status, body)
	}
	return record.Decode(body)
}

// PushNotification delivers one notification event. Satisfies
// notify.Sender.
func (c *Client) PushNotification(ctx context.Context, ev notify.Event) error {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/notifications", ev)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return mapStatus(status, body)
	}
	return nil
}

// Login exchanges credentials for a bearer token and installs it on the
// client.
func (c *Client) Login(ctx context.Context, userID, password string) error {
	payload := map[string]string{"userId": userID, "password": password}
	status, body, err := c.do(ctx, http.MethodPost, "/v1/auth/login", payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return mapStatus(status, body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Token == "" {
		return fmt.Errorf("%w: bad login response", ErrTransport)
	}
	c.token = resp.Token
	return nil
}
