package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
)

var _ domain.RemoteStore = (*HTTPStore)(nil)

// HTTPStore talks to the replica server. The server derives the user from
// the bearer token, so the userID arguments are only checked locally.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPStore(baseURL, token string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *HTTPStore) Fetch(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	resp, err := s.do(ctx, http.MethodGet, "/api/v1/replica", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrReplicaNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var snap domain.RemoteSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", domain.ErrRemoteUnavailable, err)
	}
	if userID != "" && snap.Profile.UserID != "" && snap.Profile.UserID != userID {
		return nil, domain.ErrReplicaOwnership
	}
	return &snap, nil
}

func (s *HTTPStore) Commit(ctx context.Context, batch *domain.ReplicaBatch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("remote: marshal batch: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPost, "/api/v1/replica/batch", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return resp, nil
}

// checkStatus maps server responses back onto domain errors.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var payload errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
	msg := payload.Error
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrInvalidToken, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrReplicaOwnership, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidBatch, msg)
	default:
		return fmt.Errorf("%w: %s", domain.ErrRemoteUnavailable, msg)
	}
}

// IsTransient reports whether err should simply be retried on the next
// sync trigger.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrRemoteUnavailable)
}
