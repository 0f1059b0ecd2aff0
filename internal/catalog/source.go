package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const defaultFetchTimeout = 10 * time.Second

// Source fetches the catalog document over HTTP.
type Source struct {
	url    string
	http   *http.Client
	now    func() time.Time
	logger *zap.Logger
}

// NewSource creates a Source for the given products.json URL.
func NewSource(rawURL string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		url:    rawURL,
		http:   &http.Client{Timeout: defaultFetchTimeout},
		now:    time.Now,
		logger: logger,
	}
}

// Fetch downloads and decodes the catalog. The URL is cache-busted on every call.
func (s *Source) Fetch(ctx context.Context) ([]Product, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse url: %w", err)
	}
	q := u.Query()
	q.Set("ts", strconv.FormatInt(s.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("catalog: read: %w", err)
	}
	return Decode(body)
}

// LoadOrEmpty fetches the catalog and degrades to an empty list on any failure.
func (s *Source) LoadOrEmpty(ctx context.Context) []Product {
	products, err := s.Fetch(ctx)
	if err != nil {
		s.logger.Warn("catalog unavailable, showing empty catalog", zap.Error(err))
		return []Product{}
	}
	return products
}

// Decode accepts either {"items": [...]} or a bare product array.
func Decode(data []byte) ([]Product, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []Product
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("catalog: decode: %w", err)
		}
		return items, nil
	}
	var doc struct {
		Items []Product `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if doc.Items == nil {
		return []Product{}, nil
	}
	return doc.Items, nil
}
