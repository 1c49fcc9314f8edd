// Package graphql implements a driven.Ingestor that runs a GraphQL query over
// HTTP and lands the response in the inbound zone.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/custodia-labs/lakegate/internal/adapters/driven/ingest/rest"
	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Ingestor implements the interface.
var _ driven.Ingestor = (*Ingestor)(nil)

const maxBody = 64 << 20

// Config configures the GraphQL ingestor.
type Config struct {
	Endpoint  string
	Query     string
	Variables map[string]any
	Token     string

	// Inbound is the inbound zone prefix.
	Inbound string

	// Retry tunes the HTTP client; only its retry and timeout fields are used.
	Retry rest.Config
}

// request is the POST body of a GraphQL call.
type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// response is the part of a GraphQL response inspected before storing it.
type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Ingestor posts one query per batch and stores the response as
// <inbound>api/graphql/<batch timestamp>.json.
type Ingestor struct {
	store   driven.BlobStore
	client  *retryablehttp.Client
	cfg     Config
	payload []byte
}

// New creates a GraphQL ingestor.
func New(store driven.BlobStore, cfg Config) (*Ingestor, error) {
	if cfg.Endpoint == "" {
		return nil, domain.ConfigError("ingest.graphql_endpoint is empty",
			"set ingest.graphql_endpoint or disable GraphQL ingestion")
	}
	if cfg.Query == "" {
		return nil, domain.ConfigError("ingest.graphql_query is empty", "set ingest.graphql_query")
	}
	vars := cfg.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	payload, err := json.Marshal(request{Query: cfg.Query, Variables: vars})
	if err != nil {
		return nil, domain.ConfigError(fmt.Sprintf("encode graphql variables: %v", err),
			"ingest.graphql_variables must be a JSON object")
	}
	return &Ingestor{
		store:   store,
		client:  rest.NewClient(cfg.Retry),
		cfg:     cfg,
		payload: payload,
	}, nil
}

// Name identifies the ingestor in logs.
func (i *Ingestor) Name() string { return "graphql" }

// Ingest posts the query and stores the full response. A response carrying
// errors and no data is rejected; partial data is stored and the errors logged.
func (i *Ingestor) Ingest(ctx context.Context, batchTime time.Time) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, i.cfg.Endpoint, bytes.NewReader(i.payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w: %w", domain.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if i.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+i.cfg.Token)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("query %s: %w: %w", i.cfg.Endpoint, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := rest.StatusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("query %s: status %d: %w", i.cfg.Endpoint, resp.StatusCode, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrTransient, err)
	}
	if len(body) > maxBody {
		return nil, fmt.Errorf("response larger than %d bytes: %w", maxBody, domain.ErrInvalidInput)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("response from %s is not a GraphQL object: %w", i.cfg.Endpoint, domain.ErrInvalidInput)
	}
	hasData := len(parsed.Data) > 0 && string(parsed.Data) != "null"
	if len(parsed.Errors) > 0 {
		if !hasData {
			return nil, fmt.Errorf("query %s: %s: %w", i.cfg.Endpoint, parsed.Errors[0].Message, domain.ErrInvalidInput)
		}
		logger.With("errors", len(parsed.Errors)).Warn("graphql returned partial data: %s", parsed.Errors[0].Message)
	}

	key := i.cfg.Inbound + "api/graphql/" + batchTime.UTC().Format(domain.BatchTimestampLayout) + ".json"
	if err := i.store.Put(ctx, key, body); err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}
	logger.With(logger.FieldKey, key, "bytes", len(body)).Debug("ingested GraphQL response")
	return []string{key}, nil
}
