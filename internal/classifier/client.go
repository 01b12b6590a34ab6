// Package classifier calls the external text classification service.
package classifier

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ErrMalformed is returned when the service answers with a payload that is not a JSON object.
var ErrMalformed = errors.New("classifier: malformed response")

// ErrDisabled is returned when no service URL is configured.
var ErrDisabled = errors.New("classifier: not configured")

const maxResponseBytes = 1 << 20

// Result is the subset of the classifier response the pipeline understands.
type Result struct {
	Category   *string
	Confidence *float64
	Priority   *domain.TicketPriority
	Intent     *string
	Keywords   []string
	Entities   map[string]any
}

// Metadata returns the blob stored under integration_metadata.ai.
func (r *Result) Metadata() map[string]any {
	meta := map[string]any{}
	if r.Intent != nil {
		meta["intent"] = *r.Intent
	}
	if len(r.Keywords) > 0 {
		meta["keywords"] = r.Keywords
	}
	if len(r.Entities) > 0 {
		meta["entities"] = r.Entities
	}
	if r.Category != nil {
		meta["suggested_category"] = *r.Category
	}
	if r.Priority != nil {
		meta["suggested_priority"] = string(*r.Priority)
	}
	if r.Confidence != nil {
		meta["confidence"] = *r.Confidence
	}
	return meta
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Cache    ResponseCache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Client posts ticket text to the enrichment endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	cache    ResponseCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewClient builds a client. The timeout is capped at two seconds.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 || timeout > 2*time.Second {
		timeout = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := ""
	if strings.TrimSpace(opts.BaseURL) != "" {
		endpoint = EnrichURL(opts.BaseURL)
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   logger,
	}
}

// EnrichURL derives the enrichment endpoint from a configured base URL.
// A base that already points at /predict is rewritten to /enrich.
func EnrichURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/predict") {
		return strings.TrimSuffix(base, "/predict") + "/enrich"
	}
	if strings.HasSuffix(base, "/enrich") {
		return base
	}
	return base + "/enrich"
}

// Classify sends text to the service. Any transport, status or decoding problem is returned as an error.
func (c *Client) Classify(ctx context.Context, text string) (*Result, error) {
	if c.endpoint == "" {
		return nil, ErrDisabled
	}

	key := cacheKey(text)
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key); err == nil {
			if result, err := Parse(cached); err == nil {
				return result, nil
			}
		} else if !errors.Is(err, ErrCacheMiss) {
			c.logger.Debug("classifier cache read failed", zap.Error(err))
		}
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read classifier response: %w", err)
	}
	result, err := Parse(body)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, key, body, c.cacheTTL); err != nil {
			c.logger.Debug("classifier cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// Parse decodes a classifier response. Fields of the wrong type are ignored individually;
// a body that is not a JSON object is rejected.
func Parse(body []byte) (*Result, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, ErrMalformed
	}

	result := &Result{}
	if category, ok := raw["category"].(string); ok && category != "" {
		result.Category = &category
	}
	if confidence, ok := raw["confidence"].(float64); ok {
		result.Confidence = &confidence
	}
	if priority, ok := raw["priority"].(string); ok {
		p := domain.TicketPriority(strings.ToUpper(priority))
		if p.Valid() {
			result.Priority = &p
		}
	}
	if intent, ok := raw["intent"].(string); ok && intent != "" {
		result.Intent = &intent
	}
	if keywords, ok := raw["keywords"].([]any); ok {
		for _, kw := range keywords {
			if s, ok := kw.(string); ok && s != "" {
				result.Keywords = append(result.Keywords, s)
			}
		}
	}
	if entities, ok := raw["entities"].(map[string]any); ok {
		result.Entities = entities
	}
	return result, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "classifier:enrich:" + hex.EncodeToString(sum[:])
}
