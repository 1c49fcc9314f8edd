// Package rest implements a driven.Ingestor that pulls a JSON payload from an
// HTTP endpoint and lands it in the inbound zone.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Ingestor implements the interface.
var _ driven.Ingestor = (*Ingestor)(nil)

// maxBody caps the payload read from the endpoint.
const maxBody = 64 << 20

// Config configures the REST ingestor.
type Config struct {
	URL   string
	Token string

	// Inbound is the inbound zone prefix.
	Inbound string

	// RetryMax is the number of retries after the first attempt. Default 3.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Timeout bounds a single attempt. Default 30s.
	Timeout time.Duration
}

// Ingestor fetches one payload per batch and stores it as
// <inbound>api/rest/<batch timestamp>.json.
type Ingestor struct {
	store   driven.BlobStore
	client  *retryablehttp.Client
	url     string
	token   string
	inbound string
}

// New creates a REST ingestor.
func New(store driven.BlobStore, cfg Config) (*Ingestor, error) {
	if cfg.URL == "" {
		return nil, domain.ConfigError("ingest.rest_url is empty", "set ingest.rest_url or disable REST ingestion")
	}
	return &Ingestor{
		store:   store,
		client:  NewClient(cfg),
		url:     cfg.URL,
		token:   cfg.Token,
		inbound: cfg.Inbound,
	}, nil
}

// NewClient builds the retrying HTTP client shared by the HTTP ingestors.
// Only the retry and timeout fields of cfg are used.
func NewClient(cfg Config) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{}
	client.RetryMax = 3
	if cfg.RetryMax > 0 {
		client.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.HTTPClient.Timeout = timeout
	return client
}

// Name identifies the ingestor in logs.
func (i *Ingestor) Name() string { return "rest" }

// Ingest fetches the endpoint and stores the body. The body must be JSON.
func (i *Ingestor) Ingest(ctx context.Context, batchTime time.Time) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, i.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w: %w", domain.ErrConfiguration, err)
	}
	req.Header.Set("Accept", "application/json")
	if i.token != "" {
		req.Header.Set("Authorization", "Bearer "+i.token)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetch %s: %w: %w", i.url, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := StatusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("fetch %s: status %d: %w", i.url, resp.StatusCode, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrTransient, err)
	}
	if len(body) > maxBody {
		return nil, fmt.Errorf("response larger than %d bytes: %w", maxBody, domain.ErrInvalidInput)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("response from %s is not JSON: %w", i.url, domain.ErrInvalidInput)
	}

	key := i.inbound + "api/rest/" + batchTime.UTC().Format(domain.BatchTimestampLayout) + ".json"
	if err := i.store.Put(ctx, key, body); err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}
	logger.With(logger.FieldKey, key, "bytes", len(body)).Debug("ingested REST payload")
	return []string{key}, nil
}

// StatusError maps a non-2xx status to a domain sentinel. 2xx yields nil.
func StatusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ErrAccessDenied
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	default:
		return domain.ErrTransient
	}
}

// leveledLogger routes retryablehttp's logging through the application logger.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...any) {
	logger.With(keysAndValues...).Warn("%s", msg)
}

func (leveledLogger) Warn(msg string, keysAndValues ...any) {
	logger.With(keysAndValues...).Warn("%s", msg)
}

func (leveledLogger) Info(msg string, keysAndValues ...any) {
	logger.With(keysAndValues...).Debug("%s", msg)
}

func (leveledLogger) Debug(msg string, keysAndValues ...any) {
	logger.With(keysAndValues...).Debug("%s", msg)
}
