package stalwart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// accountIDAlphabet is the base32 alphabet the server uses to turn numeric
// principal IDs into JMAP account IDs: a-z for 0-25, then 7,9,2,0,1,3.
const accountIDAlphabet = "abcdefghijklmnopqrstuvwxyz792013"

// JMAPAccountID converts a principal ID to the account ID JMAP calls expect.
func JMAPAccountID(principalID uint32) string {
	if principalID == 0 {
		return "a"
	}
	var buf [7]byte
	i := len(buf)
	for id := principalID; id > 0; id /= 32 {
		i--
		buf[i] = accountIDAlphabet[id%32]
	}
	return string(buf[i:])
}

var sieveCapabilities = []string{"urn:ietf:params:jmap:core", "urn:ietf:params:jmap:sieve"}

// JMAPClient manages Sieve scripts over JMAP on behalf of mailbox owners.
type JMAPClient struct {
	httpClient *http.Client
	baseURL    string
	adminToken string
}

func NewJMAPClient(baseURL, adminToken string, timeout time.Duration) *JMAPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JMAPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
	}
}

// DeploySieveScript uploads content as a blob, removes any script already
// stored under name and activates the new one.
func (c *JMAPClient) DeploySieveScript(ctx context.Context, accountID, name, content string) error {
	if err := c.DeleteSieveScript(ctx, accountID, name); err != nil {
		return err
	}
	blobID, err := c.uploadBlob(ctx, accountID, []byte(content))
	if err != nil {
		return fmt.Errorf("upload sieve blob: %w", err)
	}

	if _, err := c.call(ctx, "SieveScript/set", map[string]any{
		"accountId": accountID,
		"create": map[string]any{
			"script": map[string]any{"name": name, "blobId": blobID},
		},
		"onSuccessActivateScript": "#script",
	}); err != nil {
		return fmt.Errorf("deploy sieve script %s: %w", name, err)
	}
	return nil
}

// DeleteSieveScript removes the scripts stored under name. Missing scripts
// are not an error.
func (c *JMAPClient) DeleteSieveScript(ctx context.Context, accountID, name string) error {
	args, err := c.call(ctx, "SieveScript/query", map[string]any{
		"accountId": accountID,
		"filter":    map[string]any{"name": name},
	})
	if err != nil {
		return fmt.Errorf("query sieve scripts: %w", err)
	}
	var query struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(args, &query); err != nil {
		return fmt.Errorf("decode sieve query: %w", err)
	}
	if len(query.IDs) == 0 {
		return nil
	}

	if _, err := c.call(ctx, "SieveScript/set", map[string]any{
		"accountId":                 accountID,
		"onSuccessDeactivateScript": true,
		"destroy":                   query.IDs,
	}); err != nil {
		return fmt.Errorf("destroy sieve script %s: %w", name, err)
	}
	return nil
}

func (c *JMAPClient) uploadBlob(ctx context.Context, accountID string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/jmap/upload/%s/", c.baseURL, accountID), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth("admin", c.adminToken)
	req.Header.Set("Content-Type", "application/sieve")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", &APIError{Status: resp.StatusCode, Details: strings.TrimSpace(string(body))}
	}

	var result struct {
		BlobID string `json:"blobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return result.BlobID, nil
}

// call runs a single JMAP method and returns its response arguments. A
// method-level "error" response is turned into an error.
func (c *JMAPClient) call(ctx context.Context, method string, args map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"using":       sieveCapabilities,
		"methodCalls": []any{[]any{method, args, "0"}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal jmap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jmap", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("admin", c.adminToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Status: resp.StatusCode, Details: strings.TrimSpace(string(respBody))}
	}

	var result struct {
		MethodResponses [][]json.RawMessage `json:"methodResponses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode jmap response: %w", err)
	}
	if len(result.MethodResponses) == 0 || len(result.MethodResponses[0]) < 2 {
		return nil, fmt.Errorf("empty jmap response for %s", method)
	}

	var name string
	if err := json.Unmarshal(result.MethodResponses[0][0], &name); err != nil {
		return nil, fmt.Errorf("decode jmap method name: %w", err)
	}
	if name == "error" {
		var e struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		}
		_ = json.Unmarshal(result.MethodResponses[0][1], &e)
		return nil, &APIError{Status: resp.StatusCode, Code: e.Type, Details: e.Description}
	}
	return result.MethodResponses[0][1], nil
}
