package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/termhub/connvault/models"
)

// HTTPBlobConfig configures the object-storage backend adapter.
type HTTPBlobConfig struct {
	BaseURL string
	Timeout time.Duration
}

// httpBlobAdapter stores the vault document as a single object behind a
// small HTTP API:
//
//	GET /api/vault         -> 200 blob + ETag + X-Updated-At | 404
//	PUT /api/vault         -> 200 new ETag, conditional on If-Match
//	GET /api/account       -> 200 account JSON | 401
//
// The ETag carries the integer document version, so If-Match gives an
// atomic compare-and-swap on the server side.
type httpBlobAdapter struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

// NewHTTPBlobAdapter builds the object-storage adapter. Transient transport
// failures on fetch are retried with exponential backoff inside the adapter;
// the sync engine above never retries.
func NewHTTPBlobAdapter(cfg HTTPBlobConfig) Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &httpBlobAdapter{client: cli}
}

func (h *httpBlobAdapter) ID() models.ProviderID { return models.ProviderHTTPBlob }

func (h *httpBlobAdapter) Connect(ctx context.Context, creds models.ProviderCredentials) (models.AccountInfo, error) {
	if creds.Endpoint != "" {
		h.client.SetBaseURL(strings.TrimRight(creds.Endpoint, "/"))
	}
	h.setToken(creds.Token)

	resp, err := h.authedRequest(ctx).Get("/api/account")
	if err != nil {
		return models.AccountInfo{}, fmt.Errorf("%w: account request: %v", ErrNetwork, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return models.AccountInfo{}, ErrAuth
	}
	if err = mapHTTPError(resp); err != nil {
		return models.AccountInfo{}, err
	}

	var account models.AccountInfo
	if err = json.Unmarshal(resp.Body(), &account); err != nil {
		// Older servers return an empty body; fall back to the token claims.
		account = accountFromToken(creds.Token)
	}
	account.ProviderID = models.ProviderHTTPBlob

	return account, nil
}

func (h *httpBlobAdapter) Fetch(ctx context.Context) (*models.RemoteSnapshot, error) {
	var resp *resty.Response

	// Only transport-level failures are retried here; HTTP status errors
	// pass through to mapHTTPError untouched.
	operation := func() error {
		var reqErr error
		resp, reqErr = h.authedRequest(ctx).Get("/api/vault")
		return reqErr
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("%w: fetch request: %v", ErrNetwork, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if err := mapHTTPError(resp); err != nil {
		return nil, err
	}

	version, err := parseETagVersion(resp.Header().Get("ETag"))
	if err != nil {
		return nil, fmt.Errorf("parse vault version: %w", err)
	}
	updatedAt, _ := strconv.ParseInt(resp.Header().Get("X-Updated-At"), 10, 64)

	return &models.RemoteSnapshot{
		Blob:      string(resp.Body()),
		Version:   version,
		UpdatedAt: updatedAt,
	}, nil
}

func (h *httpBlobAdapter) Push(ctx context.Context, blob string, expectedVersion int64) (int64, error) {
	req := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("X-Updated-At", strconv.FormatInt(time.Now().UnixMilli(), 10)).
		SetBody(blob)

	if expectedVersion > 0 {
		req.SetHeader("If-Match", etagFor(expectedVersion))
	} else {
		// First write: only succeed if no document exists yet.
		req.SetHeader("If-None-Match", "*")
	}

	resp, err := req.Put("/api/vault")
	if err != nil {
		return 0, fmt.Errorf("%w: push request: %v", ErrNetwork, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return 0, err
	}

	newVersion, err := parseETagVersion(resp.Header().Get("ETag"))
	if err != nil {
		return 0, fmt.Errorf("parse pushed version: %w", err)
	}

	return newVersion, nil
}

func (h *httpBlobAdapter) Disconnect(_ context.Context) error {
	h.setToken("")
	return nil
}

func (h *httpBlobAdapter) setToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = strings.TrimSpace(token)
}

func (h *httpBlobAdapter) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)

	h.mu.RLock()
	token := h.token
	h.mu.RUnlock()

	if token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}

	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusConflict, http.StatusPreconditionFailed:
		return ErrVersionConflict
	case http.StatusNotFound:
		return ErrNotFound
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return fmt.Errorf("%w: http %d: %s", ErrNetwork, resp.StatusCode(), body)
}

func etagFor(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

func parseETagVersion(etag string) (int64, error) {
	trimmed := strings.Trim(strings.TrimSpace(etag), `"`)
	if trimmed == "" {
		return 0, errors.New("empty etag")
	}
	return strconv.ParseInt(trimmed, 10, 64)
}

// accountFromToken extracts best-effort identity fields from the bearer
// token without verifying the signature; verification is the server's job.
func accountFromToken(tokenString string) models.AccountInfo {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return models.AccountInfo{}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.AccountInfo{}
	}

	var account models.AccountInfo
	if sub, err := claims.GetSubject(); err == nil {
		account.AccountID = sub
	}
	if email, ok := claims["email"].(string); ok {
		account.Email = email
	}
	return account
}
