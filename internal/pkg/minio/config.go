package minio

import (
	"errors"
	"time"
)

// BucketLookupType represents the type of bucket lookup
type BucketLookupType string

const (
	BucketLookupAuto BucketLookupType = "auto"
	BucketLookupDNS  BucketLookupType = "dns"
	BucketLookupPath BucketLookupType = "path"
)

// Config configures the object-store mirror for converted artifacts.
// An empty Endpoint disables the mirror.
type Config struct {
	Endpoint        string           `mapstructure:"endpoint"`
	AccessKeyID     string           `mapstructure:"accesskeyid"`
	SecretAccessKey string           `mapstructure:"secretaccesskey"`
	SessionToken    string           `mapstructure:"sessiontoken"`
	Region          string           `mapstructure:"region"`
	UseSSL          bool             `mapstructure:"usessl"`
	BucketLookup    BucketLookupType `mapstructure:"bucketlookup"`

	// Bucket receives the mirrored objects; Prefix is prepended to each key.
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`

	// RequestTimeout bounds a single upload or removal.
	RequestTimeout time.Duration `mapstructure:"requesttimeout"`
}

// Enabled reports whether the mirror is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.Endpoint != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: endpoint is required")
	}
	if c.AccessKeyID == "" {
		return errors.New("minio: access key ID is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("minio: secret access key is required")
	}
	if err := ValidateBucketName(c.Bucket); err != nil {
		return WrapErrorWithMessage("Validate", ErrInvalidBucketName, err.Error())
	}

	switch c.BucketLookup {
	case "", BucketLookupAuto, BucketLookupDNS, BucketLookupPath:
	default:
		return errors.New("minio: invalid bucket lookup type")
	}
	if c.RequestTimeout < 0 {
		return errors.New("minio: request timeout must be >= 0")
	}
	return nil
}

// SetDefaults sets default values for unspecified configuration fields
func (c *Config) SetDefaults() {
	if c.BucketLookup == "" {
		c.BucketLookup = BucketLookupAuto
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// DefaultConfig returns a disabled mirror configuration.
func DefaultConfig() *Config {
	return &Config{
		UseSSL:         true,
		BucketLookup:   BucketLookupAuto,
		Bucket:         "transmute",
		Prefix:         "conversions",
		RequestTimeout: 30 * time.Second,
	}
}
