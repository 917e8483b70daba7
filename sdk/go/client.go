package stratosdk

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

// Client is a minimal Strato HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses with the decoded error envelope.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d kind=%s message=%s", e.StatusCode, e.Kind, e.Message)
}

// Collection is the read envelope for collection queries.
type Collection struct {
	Name      string           `json:"name"`
	Count     int              `json:"count"`
	Subcount  int              `json:"subcount"`
	Pages     int              `json:"pages"`
	Resources []map[string]any `json:"resources"`
}

// Result is one per-item action outcome.
type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Href     string `json:"href,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	TaskHref string `json:"task_href,omitempty"`
}

// ListOptions shape a collection query.
type ListOptions struct {
	Filters    []string
	Expand     bool
	Attributes []string
	Limit      int
	Offset     int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	for _, f := range o.Filters {
		v.Add("filter[]", f)
	}
	if o.Expand {
		v.Set("expand", "resources")
	}
	if len(o.Attributes) > 0 {
		v.Set("attributes", strings.Join(o.Attributes, ","))
	}
	if o.Limit > 0 {
		v.Set("limit", fmt.Sprint(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", fmt.Sprint(o.Offset))
	}
	return v
}

// List queries a collection.
func (c *Client) List(ctx context.Context, collection string, opts ListOptions) (*Collection, error) {
	path := "/" + collection
	if q := opts.values().Encode(); q != "" {
		path += "?" + q
	}
	var out Collection
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get reads one resource; id may be plain, compressed, or an alternate key.
func (c *Client) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/"+collection+"/"+id, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts a create action against a collection.
func (c *Client) Create(ctx context.Context, collection string, attrs map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/"+collection, attrs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Action dispatches a named action against one resource.
func (c *Client) Action(ctx context.Context, collection, id, action string, attrs map[string]any) (*Result, error) {
	body := map[string]any{"action": action}
	for k, v := range attrs {
		body[k] = v
	}
	var out Result
	if err := c.do(ctx, http.MethodPost, "/"+collection+"/"+id, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkAction dispatches one action against many resources at once.
func (c *Client) BulkAction(ctx context.Context, collection, action string, resources []map[string]any) ([]Result, error) {
	body := map[string]any{"action": action, "resources": resources}
	var out struct {
		Results []Result `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/"+collection, body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Delete removes a resource; success is a bodyless 204.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, "/"+collection+"/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	} else if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Kind = envelope.Error.Kind
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
