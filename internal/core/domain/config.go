package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// UnimplementedPolicy decides what the validator chain does with a check that
// reports not_implemented.
type UnimplementedPolicy string

// Unimplemented-check policies.
const (
	// PolicyFail turns not_implemented into a Failed verdict for that check.
	PolicyFail UnimplementedPolicy = "fail"

	// PolicySkip records the check as skipped and continues the chain.
	PolicySkip UnimplementedPolicy = "skip"
)

// IsValid returns true if the policy is recognised.
func (p UnimplementedPolicy) IsValid() bool {
	return p == PolicyFail || p == PolicySkip
}

// BlobStoreConfig selects and configures the blob store adapter.
type BlobStoreConfig struct {
	// Driver is one of memory, filesystem, s3.
	Driver string `mapstructure:"driver"`

	// Root is the local directory for the filesystem driver.
	Root string `mapstructure:"root"`

	// Bucket, Region, Endpoint and PathStyle configure the s3 driver.
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`

	// AccessKey and SecretKey are static credentials for S3-compatible
	// stores. When empty the default AWS credential chain is used.
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// RateLimit is the sustained operations per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// NotifyConfig configures the notification collaborator.
type NotifyConfig struct {
	// Driver is one of log, nats.
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
	Topic  string `mapstructure:"topic"`
}

// ValidationConfig configures the validator chain checks.
type ValidationConfig struct {
	SchemaRegistry string `mapstructure:"schema_registry"`
	SchemaName     string `mapstructure:"schema_name"`

	// RequiredFields must be present and non-null in every record.
	RequiredFields []string `mapstructure:"required_fields"`

	// Formats maps a field name to a regular expression its values must match.
	Formats map[string]string `mapstructure:"formats"`

	// MinRows is the exclusive lower bound on record count.
	MinRows int `mapstructure:"min_rows"`

	// Completeness maps a field name to its minimum non-null ratio (0..1).
	Completeness map[string]float64 `mapstructure:"completeness"`

	// ExpectationSuite is a blob key or local path of a YAML expectation suite.
	ExpectationSuite string `mapstructure:"expectation_suite"`

	UnimplementedPolicy UnimplementedPolicy `mapstructure:"unimplemented_policy"`
}

// TransformConfig configures the curation collaborator.
type TransformConfig struct {
	// LookupDSN is a sqlite DSN holding the enrichment lookup table.
	LookupDSN   string `mapstructure:"lookup_dsn"`
	LookupTable string `mapstructure:"lookup_table"`
}

// CatalogConfig configures the catalog crawler.
type CatalogConfig struct {
	// Name labels the crawler in logs.
	Name string `mapstructure:"name"`

	// Target is the prefix crawled on refresh; defaults to the curated prefix.
	Target      string `mapstructure:"target"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// MonitorConfig configures batch monitoring.
type MonitorConfig struct {
	// Textfile, when set, receives the metrics in Prometheus text format after each run.
	Textfile string `mapstructure:"textfile"`

	// MetricsAddr is the listen address of the /metrics endpoint used by serve.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// IngestConfig configures upstream ingestion.
type IngestConfig struct {
	RestURL   string `mapstructure:"rest_url"`
	RestToken string `mapstructure:"rest_token"`
	DropDir   string `mapstructure:"drop_dir"`

	// GraphQLVariables is a JSON object sent with GraphQLQuery.
	GraphQLEndpoint  string `mapstructure:"graphql_endpoint"`
	GraphQLQuery     string `mapstructure:"graphql_query"`
	GraphQLVariables string `mapstructure:"graphql_variables"`
	GraphQLToken     string `mapstructure:"graphql_token"`
}

// Variables decodes GraphQLVariables. An empty string yields nil.
func (c IngestConfig) Variables() (map[string]any, error) {
	if strings.TrimSpace(c.GraphQLVariables) == "" {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(c.GraphQLVariables), &vars); err != nil {
		return nil, err
	}
	return vars, nil
}

// RunConfig configures coordinator execution.
type RunConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	Interval    time.Duration `mapstructure:"interval"`
	KeepRuns    int           `mapstructure:"keep_runs"`
}

// PipelineConfig is supplied at startup and is immutable for a run.
type PipelineConfig struct {
	DataDir    string           `mapstructure:"data_dir"`
	BlobStore  BlobStoreConfig  `mapstructure:"blobstore"`
	Prefixes   Prefixes         `mapstructure:"prefixes"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Validation ValidationConfig `mapstructure:"validation"`
	Transform  TransformConfig  `mapstructure:"transform"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Pipeline   RunConfig        `mapstructure:"pipeline"`
}

// DefaultEmailPattern is the default email format rule.
const DefaultEmailPattern = `[^@]+@[^\.]+\..+`

// DefaultPipelineConfig returns sensible defaults for every section.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BlobStore: BlobStoreConfig{Driver: "filesystem", Burst: 1},
		Prefixes:  DefaultPrefixes(),
		Notify: NotifyConfig{
			Driver: "log",
			Topic:  "lakegate.quarantine",
		},
		Validation: ValidationConfig{
			RequiredFields:      []string{"id", "timestamp"},
			Formats:             map[string]string{"email": DefaultEmailPattern},
			MinRows:             0,
			Completeness:        map[string]float64{"id": 1.0},
			UnimplementedPolicy: PolicyFail,
		},
		Catalog: CatalogConfig{Name: "lakegate-crawler", TablePrefix: "lakegate_"},
		Pipeline: RunConfig{
			Concurrency: 4,
			CallTimeout: 30 * time.Second,
			Interval:    time.Hour,
			KeepRuns:    100,
		},
	}
}

var (
	blobDrivers   = map[string]bool{"memory": true, "filesystem": true, "s3": true}
	notifyDrivers = map[string]bool{"log": true, "nats": true}
)

// Validate checks the configuration before any item is processed.
// Every failure wraps ErrConfiguration.
//
//nolint:gocyclo // flat list of independent checks
func (c *PipelineConfig) Validate() error {
	if !blobDrivers[c.BlobStore.Driver] {
		return ConfigError(fmt.Sprintf("unknown blob store driver %q", c.BlobStore.Driver),
			"set blobstore.driver to memory, filesystem or s3")
	}
	if c.BlobStore.Driver == "s3" && c.BlobStore.Bucket == "" {
		return ConfigError("blobstore.bucket is required for the s3 driver", "set LAKEGATE_BLOBSTORE_BUCKET or RAW_BUCKET")
	}
	if (c.BlobStore.AccessKey == "") != (c.BlobStore.SecretKey == "") {
		return ConfigError("blobstore.access_key and blobstore.secret_key must be set together", "")
	}
	if c.BlobStore.RateLimit < 0 {
		return ConfigError("blobstore.rate_limit cannot be negative", "")
	}

	if err := c.validatePrefixes(); err != nil {
		return err
	}

	if !notifyDrivers[c.Notify.Driver] {
		return ConfigError(fmt.Sprintf("unknown notify driver %q", c.Notify.Driver), "set notify.driver to log or nats")
	}
	if c.Notify.Topic == "" {
		return ConfigError("notify.topic is required", "set LAKEGATE_NOTIFY_TOPIC or SNS_TOPIC_ARN")
	}
	if c.Notify.Driver == "nats" && c.Notify.URL == "" {
		return ConfigError("notify.url is required for the nats driver", "")
	}

	if !c.Validation.UnimplementedPolicy.IsValid() {
		return ConfigError(fmt.Sprintf("unknown unimplemented_policy %q", c.Validation.UnimplementedPolicy),
			"use fail or skip")
	}
	if (c.Validation.SchemaRegistry == "") != (c.Validation.SchemaName == "") {
		return ConfigError("validation.schema_registry and validation.schema_name must be set together", "")
	}
	for field, pattern := range c.Validation.Formats {
		if _, err := regexp.Compile(pattern); err != nil {
			return ConfigError(fmt.Sprintf("invalid format pattern for %s: %v", field, err), "")
		}
	}
	if c.Validation.MinRows < 0 {
		return ConfigError("validation.min_rows cannot be negative", "")
	}
	for field, ratio := range c.Validation.Completeness {
		if ratio < 0 || ratio > 1 {
			return ConfigError(fmt.Sprintf("completeness for %s must be between 0 and 1", field), "")
		}
	}

	if c.Ingest.GraphQLEndpoint != "" && c.Ingest.GraphQLQuery == "" {
		return ConfigError("ingest.graphql_query is required with ingest.graphql_endpoint", "set GRAPHQL_QUERY")
	}
	if _, err := c.Ingest.Variables(); err != nil {
		return ConfigError(fmt.Sprintf("ingest.graphql_variables: %v", err), "use a JSON object such as {\"limit\": 10}")
	}

	if (c.Transform.LookupDSN == "") != (c.Transform.LookupTable == "") {
		return ConfigError("transform.lookup_dsn and transform.lookup_table must be set together", "")
	}

	if c.Pipeline.Concurrency < 1 {
		return ConfigError("pipeline.concurrency must be at least 1", "")
	}
	if c.Pipeline.CallTimeout <= 0 {
		return ConfigError("pipeline.call_timeout must be positive", "")
	}
	return nil
}

func (c *PipelineConfig) validatePrefixes() error {
	seen := make(map[string]Zone)
	for _, z := range AllZones() {
		p := c.Prefixes.Of(z)
		if p == "" {
			return ConfigError(fmt.Sprintf("prefixes.%s is required", z), "")
		}
		if other, dup := seen[p]; dup {
			return ConfigError(fmt.Sprintf("prefixes.%s and prefixes.%s are both %q", other, z, p), "")
		}
		seen[p] = z
	}
	for a, za := range seen {
		for b, zb := range seen {
			if a != b && strings.HasPrefix(b, a) {
				return ConfigError(fmt.Sprintf("prefixes.%s (%q) contains prefixes.%s (%q)", za, a, zb, b),
					"zone prefixes must not nest")
			}
		}
	}
	return nil
}

// CatalogTarget returns the prefix crawled by catalog refresh.
func (c *PipelineConfig) CatalogTarget() string {
	if c.Catalog.Target != "" {
		return c.Catalog.Target
	}
	return c.Prefixes.Curated
}
