package elk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Config locates the log-search backend.
type Config struct {
	BaseURL string
	Index   string
	APIKey  string
}

// Client runs query_string searches against a single index.
type Client struct {
	cfg    Config
	es     *elasticsearch.Client
	logger *slog.Logger
}

// New creates a Client. An incomplete Config is not an error; the client
// simply reports itself as unconfigured.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Index = strings.TrimSpace(cfg.Index)

	c := &Client{cfg: cfg, logger: logger.With("component", "elk_client")}
	if !c.Configured() {
		c.logger.Info("ELK log search disabled: base URL or index not set")
		return c, nil
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{cfg.BaseURL},
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	c.es = es
	return c, nil
}

// Configured reports whether both a base URL and an index are set.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.Index != ""
}

type searchRequest struct {
	Query struct {
		QueryString struct {
			Query string `json:"query"`
		} `json:"query_string"`
	} `json:"query"`
	Size int `json:"size"`
}

// Search posts a query_string query and returns the decoded response body.
// apiKey, when non-empty, overrides the configured key for this call.
func (c *Client) Search(ctx context.Context, query string, size int, apiKey string) (any, error) {
	if !c.Configured() || c.es == nil {
		return nil, fmt.Errorf("ELK configuration is not set")
	}

	var req searchRequest
	req.Query.QueryString.Query = query
	req.Size = size
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	opts := []func(*esapi.SearchRequest){
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.cfg.Index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	}
	if key := c.apiKey(apiKey); key != "" {
		opts = append(opts, c.es.Search.WithHeader(map[string]string{"Authorization": "ApiKey " + key}))
	}

	res, err := c.es.Search(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to call elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned non-OK status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode elasticsearch response: %w", err)
	}
	c.logger.DebugContext(ctx, "ELK query completed", "index", c.cfg.Index, "size", size)
	return out, nil
}

func (c *Client) apiKey(override string) string {
	if k := strings.TrimSpace(override); k != "" {
		return k
	}
	return c.cfg.APIKey
}
