// Package apiclient is an HTTP client for the DCIMS REST API, used by the
// dcims command's client subcommands.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/tphummel/dcims/internal/csvimport"
	"github.com/tphummel/dcims/internal/middleware"
	"github.com/tphummel/dcims/internal/models"
)

// Client talks to one DCIMS service. Every request carries the anonymous
// key; the Bearer token is sent only when set.
type Client struct {
	endpoint   string
	anonKey    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client targeting endpoint.
func NewClient(endpoint, anonKey, token string) *Client {
	return &Client{
		endpoint:   endpoint,
		anonKey:    anonKey,
		token:      token,
		httpClient: &http.Client{},
	}
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) doRequest(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(middleware.APIKeyHeader, c.anonKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.httpClient.Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any) (*http.Response, error) {
	if in == nil {
		return c.doRequest(ctx, method, path, "", nil)
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(in); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.doRequest(ctx, method, path, "application/json", &buf)
}

// readData checks for want and unwraps the envelope's data into out.
func readData(resp *http.Response, want int, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		return &APIError{StatusCode: resp.StatusCode, Message: gjson.GetBytes(body, "error").String()}
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return fmt.Errorf("response has no data")
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(data.Raw), out)
}

// Health fetches /healthz. A 503 is returned as *APIError.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/healthz", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return out, &APIError{StatusCode: resp.StatusCode, Message: out["error"]}
	}
	return out, nil
}

// ListServers fetches the servers matching f. A nil f lists every server.
func (c *Client) ListServers(ctx context.Context, f *models.ServerFilters) ([]*models.Server, error) {
	path := "/api/v1/servers"
	if q := filterQuery(f); q != "" {
		path += "?" + q
	}
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out []*models.Server
	if err := readData(resp, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return out, nil
}

// ImportCSV uploads a server CSV. Rejected rows are reported in the result,
// not as an error.
func (c *Client) ImportCSV(ctx context.Context, r io.Reader) (*csvimport.Result, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/servers/import", "text/csv", r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out csvimport.Result
	if err := readData(resp, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("import servers: %w", err)
	}
	return &out, nil
}

// ExportCSV streams the servers matching f as CSV into w.
func (c *Client) ExportCSV(ctx context.Context, f *models.ServerFilters, w io.Writer) error {
	path := "/api/v1/servers/export"
	if q := filterQuery(f); q != "" {
		path += "?" + q
	}
	resp, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("export servers: %w", readData(resp, http.StatusOK, nil))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("export servers: %w", err)
	}
	return nil
}

// WidgetData runs an ad-hoc widget query and returns the chart payload.
func (c *Client) WidgetData(ctx context.Context, ds models.DataSource, f *models.ServerFilters) (*models.ChartData, error) {
	body := struct {
		DataSource models.DataSource     `json:"data_source"`
		Filters    *models.ServerFilters `json:"filters,omitempty"`
	}{ds, f}
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/v1/widgets/data", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out models.ChartData
	if err := readData(resp, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("widget data: %w", err)
	}
	return &out, nil
}

// filterQuery encodes the set fields of f as query parameters.
func filterQuery(f *models.ServerFilters) string {
	if f == nil {
		return ""
	}
	q := url.Values{}
	for _, cv := range f.Columns() {
		if cv.Value != "" {
			q.Set(cv.Column, cv.Value)
		}
	}
	for k, v := range map[string]string{
		"warranty_from": f.WarrantyFrom,
		"warranty_to":   f.WarrantyTo,
		"created_from":  f.CreatedFrom,
		"created_to":    f.CreatedTo,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q.Encode()
}
