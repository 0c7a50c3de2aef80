package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/pkg/database"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/minio"
	"github.com/lk2023060901/transmute-backend/internal/pkg/redis"
	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
	"github.com/lk2023060901/transmute-backend/internal/pkg/workerpool"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: server.port is read from
// TRANSMUTE_SERVER_PORT.
const EnvPrefix = "TRANSMUTE"

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Database   database.Config   `mapstructure:"database"`
	Tables     TablesConfig      `mapstructure:"tables"`
	Cleanup    CleanupConfig     `mapstructure:"cleanup"`
	Converter  converter.Config  `mapstructure:"converter"`
	Log        logger.Config     `mapstructure:"log"`
	Redis      redis.Config      `mapstructure:"redis"`
	MinIO      minio.Config      `mapstructure:"minio"`
	WorkerPool workerpool.Config `mapstructure:"workerpool"`
}

type ServerConfig struct {
	Name            string        `mapstructure:"name"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

// Addr is the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type StorageConfig struct {
	// DataDir holds uploads, tmp, outputs and the default sqlite file.
	DataDir string `mapstructure:"data_dir"`
}

// TablesConfig names the tables backing each store.
type TablesConfig struct {
	Files       string `mapstructure:"files"`
	Conversions string `mapstructure:"conversions"`
	Relations   string `mapstructure:"relations"`
	Settings    string `mapstructure:"settings"`
}

type CleanupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// LockTTL bounds the distributed sweep lock when redis is configured.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            "transmute",
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    15 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  1 << 30,
			AllowOrigins:    []string{"*"},
		},
		Storage: StorageConfig{DataDir: "data"},
		Database: func() database.Config {
			c := *database.DefaultConfig()
			c.Path = ""
			return c
		}(),
		Tables: TablesConfig{
			Files:       "files_metadata",
			Conversions: "conversions_metadata",
			Relations:   "conversion_relations",
			Settings:    "app_settings",
		},
		Cleanup: CleanupConfig{
			Enabled:  true,
			Interval: time.Minute,
			LockTTL:  5 * time.Minute,
		},
		Converter:  *converter.DefaultConfig(),
		Log:        *logger.DefaultConfig(),
		Redis:      *redis.DefaultConfig(),
		MinIO:      *minio.DefaultConfig(),
		WorkerPool: *workerpool.DefaultConfig(),
	}
}

// Load reads an optional .env file, then path (or ./config.yaml,
// ./configs/config.yaml when path is empty), then TRANSMUTE_* environment
// variables. Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDerived() {
	if c.Database.Driver == database.DriverSQLite && c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Storage.DataDir, "db", "app.db")
	}
	c.MinIO.SetDefaults()
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if c.Cleanup.Enabled && c.Cleanup.Interval <= 0 {
		return errors.New("cleanup.interval must be positive")
	}

	tables := map[string]string{
		"tables.files":       c.Tables.Files,
		"tables.conversions": c.Tables.Conversions,
		"tables.relations":   c.Tables.Relations,
		"tables.settings":    c.Tables.Settings,
	}
	seen := make(map[string]string, len(tables))
	for key, name := range tables {
		if _, err := validator.Identifier(name); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%s and %s name the same table %q", key, other, name)
		}
		seen[name] = key
	}

	checks := []struct {
		section string
		fn      func() error
	}{
		{"database", c.Database.Validate},
		{"converter", c.Converter.Validate},
		{"log", c.Log.Validate},
		{"workerpool", c.WorkerPool.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.section, err)
		}
	}
	if c.Redis.Enabled() {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if c.MinIO.Enabled() {
		if err := c.MinIO.Validate(); err != nil {
			return fmt.Errorf("minio: %w", err)
		}
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]any{
		"server.name":             d.Server.Name,
		"server.host":             d.Server.Host,
		"server.port":             d.Server.Port,
		"server.mode":             d.Server.Mode,
		"server.read_timeout":     d.Server.ReadTimeout,
		"server.write_timeout":    d.Server.WriteTimeout,
		"server.shutdown_timeout": d.Server.ShutdownTimeout,
		"server.max_upload_bytes": d.Server.MaxUploadBytes,
		"server.allow_origins":    d.Server.AllowOrigins,

		"storage.data_dir": d.Storage.DataDir,

		"database.driver":          d.Database.Driver,
		"database.path":            d.Database.Path,
		"database.busytimeout":     d.Database.BusyTimeout,
		"database.host":            d.Database.Host,
		"database.port":            d.Database.Port,
		"database.user":            d.Database.User,
		"database.password":        d.Database.Password,
		"database.dbname":          d.Database.DBName,
		"database.sslmode":         d.Database.SSLMode,
		"database.timezone":        d.Database.Timezone,
		"database.maxidleconns":    d.Database.MaxIdleConns,
		"database.maxopenconns":    d.Database.MaxOpenConns,
		"database.connmaxlifetime": d.Database.ConnMaxLifetime,
		"database.connmaxidletime": d.Database.ConnMaxIdleTime,
		"database.loglevel":        d.Database.LogLevel,
		"database.slowthreshold":   d.Database.SlowThreshold,
		"database.preparestmt":     d.Database.PrepareStmt,

		"tables.files":       d.Tables.Files,
		"tables.conversions": d.Tables.Conversions,
		"tables.relations":   d.Tables.Relations,
		"tables.settings":    d.Tables.Settings,

		"cleanup.enabled":  d.Cleanup.Enabled,
		"cleanup.interval": d.Cleanup.Interval,
		"cleanup.lock_ttl": d.Cleanup.LockTTL,

		"converter.timeout":             d.Converter.Timeout,
		"converter.quality":             d.Converter.Quality,
		"converter.ffmpegpath":          d.Converter.FFmpegPath,
		"converter.drawiopath":          d.Converter.DrawioPath,
		"converter.uniofficelicensekey": d.Converter.UniofficeLicenseKey,
		"converter.documentdpi":         d.Converter.DocumentDPI,
		"converter.disabled":            d.Converter.Disabled,

		"log.level":            d.Log.Level,
		"log.format":           d.Log.Format,
		"log.output":           d.Log.Output,
		"log.enablecaller":     d.Log.EnableCaller,
		"log.enablestacktrace": d.Log.EnableStacktrace,
		"log.file.filename":    d.Log.File.Filename,
		"log.file.maxsize":     d.Log.File.MaxSize,
		"log.file.maxage":      d.Log.File.MaxAge,
		"log.file.maxbackups":  d.Log.File.MaxBackups,
		"log.file.compress":    d.Log.File.Compress,

		"redis.mode":           d.Redis.Mode,
		"redis.master_addr":    d.Redis.MasterAddr,
		"redis.sentinel_addrs": d.Redis.SentinelAddrs,
		"redis.master_name":    d.Redis.MasterName,
		"redis.cluster_addrs":  d.Redis.ClusterAddrs,
		"redis.username":       d.Redis.Username,
		"redis.password":       d.Redis.Password,
		"redis.db":             d.Redis.DB,
		"redis.pool_size":      d.Redis.PoolSize,
		"redis.min_idle_conns": d.Redis.MinIdleConns,
		"redis.dial_timeout":   d.Redis.DialTimeout,
		"redis.read_timeout":   d.Redis.ReadTimeout,
		"redis.write_timeout":  d.Redis.WriteTimeout,
		"redis.pool_timeout":   d.Redis.PoolTimeout,
		"redis.max_retries":    d.Redis.MaxRetries,

		"minio.endpoint":        d.MinIO.Endpoint,
		"minio.accesskeyid":     d.MinIO.AccessKeyID,
		"minio.secretaccesskey": d.MinIO.SecretAccessKey,
		"minio.sessiontoken":    d.MinIO.SessionToken,
		"minio.region":          d.MinIO.Region,
		"minio.usessl":          d.MinIO.UseSSL,
		"minio.bucketlookup":    d.MinIO.BucketLookup,
		"minio.bucket":          d.MinIO.Bucket,
		"minio.prefix":          d.MinIO.Prefix,
		"minio.requesttimeout":  d.MinIO.RequestTimeout,

		"workerpool.workers":        d.WorkerPool.Workers,
		"workerpool.expiryduration": d.WorkerPool.ExpiryDuration,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
