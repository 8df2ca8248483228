package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/apievolve/pkg/api"
	"github.com/platinummonkey/apievolve/pkg/storage"
)

// APIError is an error response of the registry
type APIError struct {
	StatusCode int
	Message    string
	Violations []api.ViolationDetails
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry returned %d: %s", e.StatusCode, e.Message)
}

// client talks to the registry API
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(registry string) (*client, error) {
	if registry == "" {
		return nil, fmt.Errorf("a registry URL is required")
	}
	if _, err := url.ParseRequestURI(registry); err != nil {
		return nil, fmt.Errorf("invalid registry URL %q: %w", registry, err)
	}
	return &client{
		baseURL: strings.TrimSuffix(registry, "/") + "/api/v1",
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (c *client) historyURL(history string, parts ...string) string {
	u := c.baseURL + "/histories/" + url.PathEscape(history)
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

// do sends a request and decodes a JSON response into out unless out is nil
func (c *client) do(method, target, contentType string, body []byte, want int, out interface{}) ([]byte, error) {
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var body struct {
			Error   string                 `json:"error"`
			Details []api.ViolationDetails `json:"details"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.Violations = body.Details
		}
		return nil, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return data, nil
}

func (c *client) Histories() ([]string, error) {
	var list api.HistoryList
	_, err := c.do("GET", c.baseURL+"/histories", "", nil, http.StatusOK, &list)
	return list.Histories, err
}

func (c *client) Revisions(history string) ([]storage.Record, error) {
	var records []storage.Record
	_, err := c.do("GET", c.historyURL(history, "revisions"), "", nil, http.StatusOK, &records)
	return records, err
}

func (c *client) Push(history string, document []byte) (*storage.Record, error) {
	var record storage.Record
	_, err := c.do("POST", c.historyURL(history, "revisions"), "application/yaml", document, http.StatusCreated, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *client) Resolve(history string, supported []int, consumer []byte) (*api.ResolveResponse, error) {
	body, err := json.Marshal(api.ResolveRequest{SupportedRevisions: supported, Consumer: string(consumer)})
	if err != nil {
		return nil, err
	}
	var resp api.ResolveResponse
	if _, err := c.do("POST", c.historyURL(history, "resolve"), "application/json", body, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Merged returns the merged model of history in format, yaml or json
func (c *client) Merged(history string, supported []int, format string) ([]byte, error) {
	query := url.Values{"format": {format}}
	if len(supported) > 0 {
		revs := make([]string, len(supported))
		for i, r := range supported {
			revs[i] = strconv.Itoa(r)
		}
		query.Set("revisions", strings.Join(revs, ","))
	}
	return c.do("GET", c.historyURL(history, "merged")+"?"+query.Encode(), "", nil, http.StatusOK, nil)
}
