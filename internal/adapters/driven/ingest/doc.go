// Package ingest groups the driven.Ingestor adapters that land upstream data
// under the inbound prefix.
//
// Adapters:
//   - local: copies files from a drop directory, with an optional fsnotify watch
//   - rest: fetches a JSON payload from an HTTP endpoint with retries
//   - graphql: posts a query with variables and stores the response
package ingest
