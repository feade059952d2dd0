package stalwart

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
)

// ErrNotFound is returned when the server reports that a principal or
// domain does not exist.
var ErrNotFound = errors.New("stalwart: not found")

// APIError is an error reported by the management API, either as a non-2xx
// status or as an "error" field in a 200 response.
type APIError struct {
	Status  int
	Code    string
	Details string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Details)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Details)
}

// Client talks to the Stalwart management API with an admin token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	adminToken string
}

func NewClient(baseURL, adminToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
	}
}

// do sends payload as JSON and decodes the response's "data" member into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth("admin", c.adminToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Details: strings.TrimSpace(string(respBody))}
	}

	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Details string          `json:"details"`
	}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if envelope.Error == "notFound" {
		return ErrNotFound
	}
	if envelope.Error != "" {
		return &APIError{Status: resp.StatusCode, Code: envelope.Error, Details: envelope.Details}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func principalPath(name string) string {
	return "/api/principal/" + url.PathEscape(name)
}

func (c *Client) CreateDomain(ctx context.Context, domain string) error {
	if err := c.do(ctx, http.MethodPost, "/api/principal", map[string]any{
		"type": "domain",
		"name": domain,
	}, nil); err != nil {
		return fmt.Errorf("create domain %s: %w", domain, err)
	}
	return nil
}

// EnsureDomain creates the domain principal unless it already exists.
func (c *Client) EnsureDomain(ctx context.Context, domain string) error {
	err := c.do(ctx, http.MethodGet, principalPath(domain), nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("get domain %s: %w", domain, err)
	}
	return c.CreateDomain(ctx, domain)
}

func (c *Client) CreateAccount(ctx context.Context, params CreateAccountParams) error {
	if err := c.do(ctx, http.MethodPost, "/api/principal", map[string]any{
		"type":        "individual",
		"name":        params.Address,
		"description": params.DisplayName,
		"quota":       params.QuotaBytes,
		"secrets":     []string{params.PasswordHash},
		"emails":      []string{params.Address},
	}, nil); err != nil {
		return fmt.Errorf("create account %s: %w", params.Address, err)
	}
	return nil
}

func (c *Client) DeleteAccount(ctx context.Context, address string) error {
	if err := c.do(ctx, http.MethodDelete, principalPath(address), nil, nil); err != nil {
		return fmt.Errorf("delete account %s: %w", address, err)
	}
	return nil
}

func (c *Client) UpdateAccount(ctx context.Context, name string, ops []PatchOp) error {
	if err := c.do(ctx, http.MethodPatch, principalPath(name), ops, nil); err != nil {
		return fmt.Errorf("update account %s: %w", name, err)
	}
	return nil
}

func (c *Client) GetAccount(ctx context.Context, address string) (*Account, error) {
	var p struct {
		ID          uint32   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Quota       int64    `json:"quota"`
		Emails      []string `json:"emails"`
	}
	if err := c.do(ctx, http.MethodGet, principalPath(address), nil, &p); err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	return &Account{
		PrincipalID: p.ID,
		Address:     p.Name,
		DisplayName: p.Description,
		QuotaBytes:  p.Quota,
		Emails:      p.Emails,
	}, nil
}

// GenerateDKIM asks the server to create an RSA signing key for the domain
// under selector.
func (c *Client) GenerateDKIM(ctx context.Context, domain, selector string) error {
	if err := c.do(ctx, http.MethodPost, "/api/dkim", map[string]any{
		"id":        nil,
		"algorithm": "Rsa",
		"domain":    domain,
		"selector":  selector,
	}, nil); err != nil {
		return fmt.Errorf("generate dkim key for %s: %w", domain, err)
	}
	return nil
}

// DNSRecords returns the records the server wants published for domain.
func (c *Client) DNSRecords(ctx context.Context, domain string) ([]DNSRecord, error) {
	var records []DNSRecord
	if err := c.do(ctx, http.MethodGet, "/api/dns/records/"+url.PathEscape(domain), nil, &records); err != nil {
		return nil, fmt.Errorf("get dns records for %s: %w", domain, err)
	}
	return records, nil
}

// Health probes the liveness and readiness endpoints. A transport error is
// returned as an error; non-200 answers just report false.
func (c *Client) Health(ctx context.Context) (live, ready bool, err error) {
	probe := func(path string) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return false, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK, nil
	}

	if live, err = probe("/healthz/live"); err != nil {
		return false, false, fmt.Errorf("liveness probe: %w", err)
	}
	if !live {
		return false, false, nil
	}
	if ready, err = probe("/healthz/ready"); err != nil {
		return true, false, fmt.Errorf("readiness probe: %w", err)
	}
	return live, ready, nil
}
