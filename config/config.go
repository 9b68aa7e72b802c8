package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Store backends understood by the server.
const (
	StoreS3     = "s3"
	StoreGCS    = "gcs"
	StoreMinio  = "minio"
	StoreMemory = "memory"
)

// URL modes for the upload endpoint.
const (
	URLModeInclude = "include"
	URLModeOmit    = "omit"
	URLModeLog     = "log"
)

// Config holds the complete uploader configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Upload  UploadConfig  `yaml:"upload" json:"upload"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type UploadConfig struct {
	ScratchDir     string `yaml:"scratchDir" json:"scratchDir"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes" json:"maxUploadBytes"`
	// URLMode decides whether the upload endpoint returns the signed URL.
	URLMode string `yaml:"urlMode" json:"urlMode"`
}

type StoreConfig struct {
	Backend string      `yaml:"backend" json:"backend"`
	S3      S3Config    `yaml:"s3" json:"s3"`
	GCS     GCSConfig   `yaml:"gcs" json:"gcs"`
	Minio   MinioConfig `yaml:"minio" json:"minio"`
}

type S3Config struct {
	Region          string `yaml:"region" json:"region"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	AccessKeyID     string `yaml:"accessKeyId" json:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey" json:"-"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	ForcePathStyle  bool   `yaml:"forcePathStyle" json:"forcePathStyle"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket" json:"bucket"`
}

type MinioConfig struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	AccessKeyID     string `yaml:"accessKeyId" json:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey" json:"-"`
	Region          string `yaml:"region" json:"region"`
	UseSSL          bool   `yaml:"useSSL" json:"useSSL"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type TracingConfig struct {
	// OTLPEndpoint enables the gRPC trace exporter when set.
	OTLPEndpoint string `yaml:"otlpEndpoint" json:"otlpEndpoint"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise. Credentials default to placeholders.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Upload: UploadConfig{
			ScratchDir:     os.TempDir(),
			MaxUploadBytes: 32 << 20,
			URLMode:        URLModeInclude,
		},
		Store: StoreConfig{
			Backend: StoreS3,
			S3: S3Config{
				Region:          "eu-central-1",
				Bucket:          "bucket-name",
				AccessKeyID:     "aws-key",
				SecretAccessKey: "aws-secret",
			},
			GCS: GCSConfig{
				Bucket: "bucket-name",
			},
			Minio: MinioConfig{
				Endpoint:        "localhost:9000",
				Bucket:          "bucket-name",
				AccessKeyID:     "minioadmin",
				SecretAccessKey: "minioadmin",
				Region:          "us-east-1",
			},
		},
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// finally the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("UPLOADER_ADDR", &c.Server.Addr)
	str("UPLOADER_LOG_LEVEL", &c.Logging.Level)
	str("UPLOADER_LOG_FORMAT", &c.Logging.Format)
	str("UPLOADER_STORE", &c.Store.Backend)
	str("UPLOADER_SCRATCH_DIR", &c.Upload.ScratchDir)
	str("UPLOADER_URL_MODE", &c.Upload.URLMode)
	if v, ok := lookup("UPLOADER_MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid UPLOADER_MAX_UPLOAD_BYTES: %w", err)
		}
		c.Upload.MaxUploadBytes = n
	}

	str("AWS_REGION", &c.Store.S3.Region)
	str("AWS_S3_BUCKET_NAME", &c.Store.S3.Bucket)
	str("AWS_ACCESS_KEY_ID", &c.Store.S3.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.Store.S3.SecretAccessKey)
	str("S3_ENDPOINT", &c.Store.S3.Endpoint)
	if err := boolean("S3_FORCE_PATH_STYLE", &c.Store.S3.ForcePathStyle); err != nil {
		return err
	}

	str("GCS_BUCKET_NAME", &c.Store.GCS.Bucket)

	str("MINIO_ENDPOINT", &c.Store.Minio.Endpoint)
	str("MINIO_BUCKET_NAME", &c.Store.Minio.Bucket)
	str("MINIO_ACCESS_KEY", &c.Store.Minio.AccessKeyID)
	str("MINIO_SECRET_KEY", &c.Store.Minio.SecretAccessKey)
	if err := boolean("MINIO_USE_SSL", &c.Store.Minio.UseSSL); err != nil {
		return err
	}

	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	return nil
}

// Validate checks the values that cannot be defaulted sensibly at use site.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreS3, StoreGCS, StoreMinio, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Upload.URLMode {
	case URLModeInclude, URLModeOmit, URLModeLog:
	default:
		return fmt.Errorf("unknown url mode %q", c.Upload.URLMode)
	}
	if c.Upload.MaxUploadBytes <= 0 {
		return fmt.Errorf("maxUploadBytes must be positive, got %d", c.Upload.MaxUploadBytes)
	}
	if c.Upload.ScratchDir == "" {
		return fmt.Errorf("scratchDir must not be empty")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	return nil
}
