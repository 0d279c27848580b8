package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	Cache    CacheConfig    `yaml:"cache"`
	App      AppConfig      `yaml:"app"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	SessionSecret string `yaml:"session_secret"` // #nosec G117 -- configuration secret field.
	BcryptCost    int    `yaml:"bcrypt_cost"`
}

type UploadsConfig struct {
	Method  string             `yaml:"method"`
	MaxSize int64              `yaml:"max_size"`
	Local   UploadsLocalConfig `yaml:"local"`
	S3      UploadsS3Config    `yaml:"s3"`
}

type UploadsLocalConfig struct {
	Directory string `yaml:"directory"`
}

type UploadsS3Config struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PublicURL       string        `yaml:"public_url"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	SessionToken    string        `yaml:"session_token"` // #nosec G117 -- configuration secret field.
	Prefix          string        `yaml:"prefix"`
	PathStyle       bool          `yaml:"path_style"`
	PresignExpiry   time.Duration `yaml:"presign_expiry"`
}

type CacheConfig struct {
	Provider  string           `yaml:"provider"`
	Directory string           `yaml:"directory"`
	TTL       CacheTTLConfig   `yaml:"ttl"`
	Redis     CacheRedisConfig `yaml:"redis"`
}

type CacheTTLConfig struct {
	Default time.Duration `yaml:"default"`
	Proxy   time.Duration `yaml:"proxy"`
}

type CacheRedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"` // #nosec G117 -- configuration secret field.
	DB       int    `yaml:"db"`
	UseTLS   bool   `yaml:"tls"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "data/clubsite.db",
		},
		Auth: AuthConfig{
			SessionSecret: "change-me-in-production",
			BcryptCost:    12,
		},
		Uploads: UploadsConfig{
			Method:  "local",
			MaxSize: 10 * 1024 * 1024, // 10MB
			Local: UploadsLocalConfig{
				Directory: "data/uploads",
			},
			S3: UploadsS3Config{
				PresignExpiry: 15 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Provider: "sqlite",
			TTL: CacheTTLConfig{
				Default: 24 * time.Hour,
				Proxy:   24 * time.Hour,
			},
		},
		App: AppConfig{
			Name: "Clubsite",
		},
	}

	root, err := os.OpenRoot(filepath.Dir(path))
	if err == nil {
		defer root.Close()
		if _, err := root.Stat(filepath.Base(path)); err == nil {
			file, err := root.Open(filepath.Base(path))
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}

			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("applying env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

type Overrides struct {
	ServerAddress      *string
	DatabasePath       *string
	AuthSessionSecret  *string
	AuthBcryptCost     *int
	UploadsMethod      *string
	UploadsLocalDir    *string
	UploadsMaxSize     *int64
	UploadsS3Bucket    *string
	UploadsS3Region    *string
	UploadsS3Endpoint  *string
	UploadsS3PublicURL *string
	UploadsS3AccessKey *string
	UploadsS3SecretKey *string
	UploadsS3Prefix    *string
	UploadsS3PathStyle *bool
	UploadsS3Expiry    *time.Duration
	CacheProvider      *string
	CacheDirectory     *string
	CacheTTLDefault    *time.Duration
	CacheTTLProxy      *time.Duration
	CacheRedisAddr     *string
	AppName            *string
}

func (c *Config) ApplyOverrides(overrides Overrides) error {
	if overrides.ServerAddress != nil {
		c.Server.Address = *overrides.ServerAddress
	}
	if overrides.DatabasePath != nil {
		c.Database.Path = *overrides.DatabasePath
	}
	if overrides.AuthSessionSecret != nil {
		c.Auth.SessionSecret = *overrides.AuthSessionSecret
	}
	if overrides.AuthBcryptCost != nil {
		c.Auth.BcryptCost = *overrides.AuthBcryptCost
	}
	if overrides.UploadsMethod != nil {
		c.Uploads.Method = *overrides.UploadsMethod
	}
	if overrides.UploadsLocalDir != nil {
		c.Uploads.Local.Directory = *overrides.UploadsLocalDir
	}
	if overrides.UploadsMaxSize != nil {
		c.Uploads.MaxSize = *overrides.UploadsMaxSize
	}
	if overrides.UploadsS3Bucket != nil {
		c.Uploads.S3.Bucket = *overrides.UploadsS3Bucket
	}
	if overrides.UploadsS3Region != nil {
		c.Uploads.S3.Region = *overrides.UploadsS3Region
	}
	if overrides.UploadsS3Endpoint != nil {
		c.Uploads.S3.Endpoint = *overrides.UploadsS3Endpoint
	}
	if overrides.UploadsS3PublicURL != nil {
		c.Uploads.S3.PublicURL = *overrides.UploadsS3PublicURL
	}
	if overrides.UploadsS3AccessKey != nil {
		c.Uploads.S3.AccessKeyID = *overrides.UploadsS3AccessKey
	}
	if overrides.UploadsS3SecretKey != nil {
		c.Uploads.S3.SecretAccessKey = *overrides.UploadsS3SecretKey
	}
	if overrides.UploadsS3Prefix != nil {
		c.Uploads.S3.Prefix = *overrides.UploadsS3Prefix
	}
	if overrides.UploadsS3PathStyle != nil {
		c.Uploads.S3.PathStyle = *overrides.UploadsS3PathStyle
	}
	if overrides.UploadsS3Expiry != nil {
		c.Uploads.S3.PresignExpiry = *overrides.UploadsS3Expiry
	}
	if overrides.CacheProvider != nil {
		c.Cache.Provider = *overrides.CacheProvider
	}
	if overrides.CacheDirectory != nil {
		c.Cache.Directory = *overrides.CacheDirectory
	}
	if overrides.CacheTTLDefault != nil {
		c.Cache.TTL.Default = *overrides.CacheTTLDefault
	}
	if overrides.CacheTTLProxy != nil {
		c.Cache.TTL.Proxy = *overrides.CacheTTLProxy
	}
	if overrides.CacheRedisAddr != nil {
		c.Cache.Redis.Addr = *overrides.CacheRedisAddr
	}
	if overrides.AppName != nil {
		c.App.Name = *overrides.AppName
	}

	return c.validate()
}

func (c *Config) applyEnv() error {
	addressSet := false
	if value, ok := lookupEnv("CLUBSITE_SERVER_ADDRESS"); ok {
		c.Server.Address = value
		addressSet = true
	}
	serverHost, hostSet := lookupEnv("CLUBSITE_SERVER_HOST")
	serverPort, portSet := lookupEnv("CLUBSITE_SERVER_PORT")
	if value, ok := lookupEnv("HOST"); ok && !hostSet {
		serverHost = value
		hostSet = true
	}
	if value, ok := lookupEnv("PORT"); ok && !portSet {
		serverPort = value
		portSet = true
	}
	if !addressSet && (hostSet || portSet) {
		if serverHost == "" {
			serverHost = "0.0.0.0"
		}
		if serverPort == "" {
			serverPort = "8080"
		}
		c.Server.Address = fmt.Sprintf("%s:%s", serverHost, serverPort)
	}
	if value, ok := lookupEnv("CLUBSITE_SERVER_READ_TIMEOUT"); ok {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_SERVER_READ_TIMEOUT: %w", err)
		}
		c.Server.ReadTimeout = duration
	}
	if value, ok := lookupEnv("CLUBSITE_SERVER_WRITE_TIMEOUT"); ok {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_SERVER_WRITE_TIMEOUT: %w", err)
		}
		c.Server.WriteTimeout = duration
	}
	if value, ok := lookupEnv("CLUBSITE_DATABASE_PATH"); ok {
		c.Database.Path = value
	}
	if value, ok := lookupEnv("CLUBSITE_AUTH_SESSION_SECRET"); ok {
		c.Auth.SessionSecret = value
	}
	if value, ok := lookupEnv("CLUBSITE_AUTH_BCRYPT_COST"); ok {
		parsed, err := parseInt(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_AUTH_BCRYPT_COST: %w", err)
		}
		c.Auth.BcryptCost = parsed
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_METHOD"); ok {
		c.Uploads.Method = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_LOCAL_DIRECTORY"); ok {
		c.Uploads.Local.Directory = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_MAX_SIZE"); ok {
		parsed, err := parseInt64(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_UPLOADS_MAX_SIZE: %w", err)
		}
		c.Uploads.MaxSize = parsed
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_BUCKET"); ok {
		c.Uploads.S3.Bucket = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_REGION"); ok {
		c.Uploads.S3.Region = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_ENDPOINT"); ok {
		c.Uploads.S3.Endpoint = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_PUBLIC_URL"); ok {
		c.Uploads.S3.PublicURL = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_ACCESS_KEY_ID"); ok {
		c.Uploads.S3.AccessKeyID = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_SECRET_ACCESS_KEY"); ok {
		c.Uploads.S3.SecretAccessKey = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_SESSION_TOKEN"); ok {
		c.Uploads.S3.SessionToken = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_PREFIX"); ok {
		c.Uploads.S3.Prefix = value
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_PATH_STYLE"); ok {
		parsed, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_UPLOADS_S3_PATH_STYLE: %w", err)
		}
		c.Uploads.S3.PathStyle = parsed
	}
	if value, ok := lookupEnv("CLUBSITE_UPLOADS_S3_PRESIGN_EXPIRY"); ok {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_UPLOADS_S3_PRESIGN_EXPIRY: %w", err)
		}
		c.Uploads.S3.PresignExpiry = duration
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_PROVIDER"); ok {
		c.Cache.Provider = value
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_DIRECTORY"); ok {
		c.Cache.Directory = value
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_TTL_DEFAULT"); ok {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_CACHE_TTL_DEFAULT: %w", err)
		}
		c.Cache.TTL.Default = duration
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_TTL_PROXY"); ok {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_CACHE_TTL_PROXY: %w", err)
		}
		c.Cache.TTL.Proxy = duration
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_REDIS_URL"); ok {
		c.Cache.Redis.URL = value
	} else if value, ok := lookupEnv("REDIS_URL"); ok {
		c.Cache.Redis.URL = value
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = value
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = value
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_REDIS_DB"); ok {
		parsed, err := parseInt(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_CACHE_REDIS_DB: %w", err)
		}
		c.Cache.Redis.DB = parsed
	}
	if value, ok := lookupEnv("CLUBSITE_CACHE_REDIS_TLS"); ok {
		parsed, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("CLUBSITE_CACHE_REDIS_TLS: %w", err)
		}
		c.Cache.Redis.UseTLS = parsed
	}
	if value, ok := lookupEnv("CLUBSITE_APP_NAME"); ok {
		c.App.Name = value
	}
	if strings.TrimSpace(c.Cache.Redis.URL) != "" {
		if err := applyRedisURL(&c.Cache.Redis); err != nil {
			return err
		}
	}

	return nil
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

func parseInt(value string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseInt64(value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseBool(value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, err
	}
	return parsed, nil
}

func applyRedisURL(cfg *CacheRedisConfig) error {
	if cfg == nil {
		return nil
	}
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("cache redis url: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("cache redis url: missing host")
	}
	if parsed.User != nil {
		password, ok := parsed.User.Password()
		if ok {
			cfg.Password = password
		}
	}
	path := strings.Trim(parsed.Path, "/")
	if path != "" {
		if dbIndex, err := strconv.Atoi(path); err == nil {
			cfg.DB = dbIndex
		} else {
			return fmt.Errorf("cache redis url: invalid db index")
		}
	}
	if strings.ToLower(parsed.Scheme) == "rediss" {
		cfg.UseTLS = true
	}
	if cfg.Addr == "" {
		cfg.Addr = parsed.Host
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Auth.SessionSecret == "" || c.Auth.SessionSecret == "change-me-in-production" {
		if os.Getenv("CLUBSITE_ENV") == "production" {
			return fmt.Errorf("session secret must be set in production")
		}
	}

	method := strings.ToLower(strings.TrimSpace(c.Uploads.Method))
	if method == "" {
		method = "local"
		c.Uploads.Method = method
	}
	if method != "local" && method != "s3" {
		return fmt.Errorf("uploads method must be local or s3")
	}
	if method == "local" {
		if c.Uploads.Local.Directory == "" {
			return fmt.Errorf("uploads local directory is required")
		}
	}
	if method == "s3" {
		if strings.TrimSpace(c.Uploads.S3.Bucket) == "" {
			return fmt.Errorf("uploads s3 bucket is required")
		}
		if strings.TrimSpace(c.Uploads.S3.Region) == "" {
			return fmt.Errorf("uploads s3 region is required")
		}
		if strings.TrimSpace(c.Uploads.S3.PublicURL) != "" {
			parsed, err := url.Parse(c.Uploads.S3.PublicURL)
			if err != nil || parsed.Host == "" {
				return fmt.Errorf("uploads s3 public url must be a valid url")
			}
			scheme := strings.ToLower(parsed.Scheme)
			if scheme != "http" && scheme != "https" {
				return fmt.Errorf("uploads s3 public url must use http or https")
			}
		}
		if c.Uploads.S3.PresignExpiry <= 0 {
			c.Uploads.S3.PresignExpiry = 15 * time.Minute
		}
	}

	cacheProvider := strings.ToLower(strings.TrimSpace(c.Cache.Provider))
	if cacheProvider == "" {
		cacheProvider = "sqlite"
		c.Cache.Provider = cacheProvider
	}
	if cacheProvider != "sqlite" && cacheProvider != "redis" {
		return fmt.Errorf("cache provider must be sqlite or redis")
	}
	if cacheProvider == "redis" {
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("cache redis addr is required")
		}
	}
	if c.Cache.TTL.Default <= 0 {
		c.Cache.TTL.Default = 24 * time.Hour
	}
	if c.Cache.TTL.Proxy <= 0 {
		c.Cache.TTL.Proxy = 24 * time.Hour
	}

	return nil
}
