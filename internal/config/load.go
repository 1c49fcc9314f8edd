// Package config loads the pipeline configuration from a TOML file and the
// environment using viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

// EnvPrefix prefixes every environment override (LAKEGATE_PREFIXES_STAGING, ...).
const EnvPrefix = "LAKEGATE"

// legacyEnv maps config keys to the environment names used by the Lambda
// deployment. They are read after the LAKEGATE_ names.
var legacyEnv = map[string]string{
	"blobstore.bucket":           "RAW_BUCKET",
	"prefixes.staging":           "STAGING_PREFIX",
	"prefixes.quarantine":        "QUARANTINE_PREFIX",
	"prefixes.enriched":          "ENRICHED_PREFIX",
	"prefixes.curated":           "CURATED_PREFIX",
	"notify.topic":               "SNS_TOPIC_ARN",
	"transform.lookup_table":     "LOOKUP_TABLE",
	"catalog.name":               "GLUE_CRAWLER_NAME",
	"validation.schema_registry": "SCHEMA_REGISTRY",
	"validation.schema_name":     "SCHEMA_NAME",
	"ingest.graphql_endpoint":    "GRAPHQL_ENDPOINT",
	"ingest.graphql_query":       "GRAPHQL_QUERY",
	"ingest.graphql_token":       "GRAPHQL_TOKEN",
}

// DefaultPath returns ~/.lakegate/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".lakegate", "config.toml"), nil
}

// Load reads the configuration. An explicit path must exist; with an empty
// path the default file is read when present. Environment variables override
// file values. The result is validated before it is returned.
func Load(path string) (*domain.PipelineConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var cfg domain.PipelineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.ConfigError(fmt.Sprintf("decode configuration: %v", err), "check value types in the config file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	setDefaults(v, domain.DefaultPipelineConfig())

	explicit := path != ""
	if !explicit {
		def, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}
	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, domain.ConfigError(fmt.Sprintf("config file %s: %v", path, err), "pass an existing file with --config")
		}
		return v, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, domain.ConfigError(fmt.Sprintf("read config file %s: %v", path, err), "the file must be valid TOML")
	}
	return v, nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		primary := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, d domain.PipelineConfig) {
	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("blobstore.driver", d.BlobStore.Driver)
	v.SetDefault("blobstore.root", d.BlobStore.Root)
	v.SetDefault("blobstore.bucket", d.BlobStore.Bucket)
	v.SetDefault("blobstore.region", d.BlobStore.Region)
	v.SetDefault("blobstore.endpoint", d.BlobStore.Endpoint)
	v.SetDefault("blobstore.path_style", d.BlobStore.PathStyle)
	v.SetDefault("blobstore.access_key", d.BlobStore.AccessKey)
	v.SetDefault("blobstore.secret_key", d.BlobStore.SecretKey)
	v.SetDefault("blobstore.rate_limit", d.BlobStore.RateLimit)
	v.SetDefault("blobstore.burst", d.BlobStore.Burst)

	v.SetDefault("prefixes.inbound", d.Prefixes.Inbound)
	v.SetDefault("prefixes.staging", d.Prefixes.Staging)
	v.SetDefault("prefixes.quarantine", d.Prefixes.Quarantine)
	v.SetDefault("prefixes.enriched", d.Prefixes.Enriched)
	v.SetDefault("prefixes.curated", d.Prefixes.Curated)

	v.SetDefault("notify.driver", d.Notify.Driver)
	v.SetDefault("notify.url", d.Notify.URL)
	v.SetDefault("notify.topic", d.Notify.Topic)

	v.SetDefault("validation.schema_registry", d.Validation.SchemaRegistry)
	v.SetDefault("validation.schema_name", d.Validation.SchemaName)
	v.SetDefault("validation.required_fields", d.Validation.RequiredFields)
	v.SetDefault("validation.formats", d.Validation.Formats)
	v.SetDefault("validation.min_rows", d.Validation.MinRows)
	v.SetDefault("validation.completeness", d.Validation.Completeness)
	v.SetDefault("validation.expectation_suite", d.Validation.ExpectationSuite)
	v.SetDefault("validation.unimplemented_policy", string(d.Validation.UnimplementedPolicy))

	v.SetDefault("transform.lookup_dsn", d.Transform.LookupDSN)
	v.SetDefault("transform.lookup_table", d.Transform.LookupTable)

	v.SetDefault("catalog.name", d.Catalog.Name)
	v.SetDefault("catalog.target", d.Catalog.Target)
	v.SetDefault("catalog.table_prefix", d.Catalog.TablePrefix)

	v.SetDefault("monitor.textfile", d.Monitor.Textfile)
	v.SetDefault("monitor.metrics_addr", d.Monitor.MetricsAddr)

	v.SetDefault("ingest.rest_url", d.Ingest.RestURL)
	v.SetDefault("ingest.rest_token", d.Ingest.RestToken)
	v.SetDefault("ingest.drop_dir", d.Ingest.DropDir)
	v.SetDefault("ingest.graphql_endpoint", d.Ingest.GraphQLEndpoint)
	v.SetDefault("ingest.graphql_query", d.Ingest.GraphQLQuery)
	v.SetDefault("ingest.graphql_variables", d.Ingest.GraphQLVariables)
	v.SetDefault("ingest.graphql_token", d.Ingest.GraphQLToken)

	v.SetDefault("pipeline.concurrency", d.Pipeline.Concurrency)
	v.SetDefault("pipeline.call_timeout", d.Pipeline.CallTimeout)
	v.SetDefault("pipeline.interval", d.Pipeline.Interval)
	v.SetDefault("pipeline.keep_runs", d.Pipeline.KeepRuns)
}
