package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the license server.
type APIError struct {
	StatusCode int
	Message    string
	Details    []FieldError
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("license server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("license server returned %d: %s", e.StatusCode, e.Message)
}

type Verdict struct {
	Status     string `json:"status"`
	ValidUntil string `json:"valid_until"`
}

func (v *Verdict) Valid() bool {
	return v.Status == "valid"
}

type LicenseSummary struct {
	ClientID         string `json:"client_id"`
	LicenseKeyPrefix string `json:"license_key_prefix"`
	ValidUntil       string `json:"valid_until"`
}

type LicenseList struct {
	Licenses []LicenseSummary `json:"licenses"`
	Count    int              `json:"count"`
}

type License struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	LicenseKey string `json:"license_key"`
	ValidUntil string `json:"valid_until"`
}

type ValidityUpdate struct {
	ClientID     string `json:"client_id"`
	ValidUntil   string `json:"valid_until"`
	RowsAffected int64  `json:"rows_affected"`
}

type LicenseClient struct {
	baseURL      string
	validatePath string
	token        string
	http         *http.Client
}

type Option func(*LicenseClient)

func WithToken(token string) Option {
	return func(c *LicenseClient) { c.token = token }
}

func WithValidatePath(path string) Option {
	return func(c *LicenseClient) { c.validatePath = path }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *LicenseClient) { c.http = hc }
}

func NewLicenseClient(baseURL string, opts ...Option) *LicenseClient {
	c := &LicenseClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		validatePath: "/api",
		http:         &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate asks the public endpoint about a client/key pair. A 403 carrying a
// status ("expired") is a verdict, not an error.
func (c *LicenseClient) Validate(ctx context.Context, clientID, licenseKey string) (*Verdict, error) {
	body := map[string]string{"client_id": clientID, "license_key": licenseKey}

	var v Verdict
	status, raw, err := c.do(ctx, http.MethodPost, c.validatePath, body, false)
	if err != nil {
		return nil, err
	}

	if status == http.StatusOK || status == http.StatusForbidden {
		if jerr := json.Unmarshal(raw, &v); jerr == nil && v.Status != "" {
			return &v, nil
		}
	}
	return nil, decodeAPIError(status, raw)
}

func (c *LicenseClient) ListLicenses(ctx context.Context) (*LicenseList, error) {
	var out LicenseList
	if err := c.admin(ctx, http.MethodGet, "/admin/licenses", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *LicenseClient) CreateLicense(ctx context.Context, clientID, licenseKey, validUntil string) (*License, error) {
	body := map[string]string{
		"client_id":   clientID,
		"license_key": licenseKey,
		"valid_until": validUntil,
	}

	var out License
	if err := c.admin(ctx, http.MethodPost, "/admin/licenses", body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *LicenseClient) UpdateValidity(ctx context.Context, clientID, validUntil string) (*ValidityUpdate, error) {
	body := map[string]string{"valid_until": validUntil}
	path := "/admin/licenses/" + url.PathEscape(clientID)

	var out ValidityUpdate
	if err := c.admin(ctx, http.MethodPatch, path, body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *LicenseClient) admin(ctx context.Context, method, path string, body any, want int, out any) error {
	status, raw, err := c.do(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	if status != want {
		return decodeAPIError(status, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *LicenseClient) do(ctx context.Context, method, path string, body any, auth bool) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Error   string       `json:"error"`
		Details []FieldError `json:"details"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	}
	return apiErr
}
