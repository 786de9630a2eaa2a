// ABOUTME: Bot provider metadata lookup used for widget name and theme
// ABOUTME: Decodes the embedded chat-widget/config annotation into a generic map

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// WidgetConfigAnnotation holds embedded JSON with widget theme and settings.
const WidgetConfigAnnotation = "chat-widget/config"

// Metadata describes the bot provider.
type Metadata struct {
	Name        string            `json:"name"`
	Annotations map[string]string `json:"annotations,omitempty"`

	// Config is the decoded WidgetConfigAnnotation, nil when absent or invalid.
	Config map[string]any `json:"-"`
}

// FetchMetadata retrieves the bot provider metadata. It returns
// ErrNoMetadata when only an explicit SSE endpoint is configured.
func (c *Client) FetchMetadata(ctx context.Context) (*Metadata, error) {
	url := c.cfg.MetadataURL()
	if url == "" {
		return nil, ErrNoMetadata
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", c.cfg.APIKey)
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	if raw, ok := md.Annotations[WidgetConfigAnnotation]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &md.Config); err != nil {
			c.logger.Warn("ignoring invalid widget config annotation", "error", err)
			md.Config = nil
		}
	}

	c.logger.Debug("fetched metadata", "name", md.Name)
	return &md, nil
}
