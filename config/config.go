package config

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Fallback admin credentials used when no users are configured.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123"
)

// Storage drivers
const (
	DriverMinio = "minio"
	DriverS3    = "s3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Users     []User          `yaml:"users"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	PDF       PDFConfig       `yaml:"pdf"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	CookieSecure   bool     `yaml:"cookie_secure"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Name               string `yaml:"name"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	SSLMode            string `yaml:"sslmode"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxIdleSeconds int    `yaml:"conn_max_idle_seconds"`
	ConnectTimeoutSecs int    `yaml:"connect_timeout_seconds"`
}

type StorageConfig struct {
	Driver           string `yaml:"driver"` // minio, s3
	Endpoint         string `yaml:"endpoint"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	UseSSL           bool   `yaml:"use_ssl"`
	PublicBaseURL    string `yaml:"public_base_url"`
	PhotoBucket      string `yaml:"photo_bucket"`
	IDBucket         string `yaml:"id_bucket"`
	PermitBucket     string `yaml:"permit_bucket"`
	MaxPhotoBytes    int64  `yaml:"max_photo_bytes"`
	MaxDocumentBytes int64  `yaml:"max_document_bytes"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

// User is an admin account. PasswordHash (bcrypt) takes precedence over Password.
type User struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RedisConfig struct {
	Addr                  string `yaml:"addr"`
	DB                    int    `yaml:"db"`
	IdempotencyTTLSeconds int    `yaml:"idempotency_ttl_seconds"`
}

type RateLimitConfig struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

type PDFConfig struct {
	// ServeStored streams the uploaded certificate instead of re-rendering it.
	ServeStored *bool `yaml:"serve_stored"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "prefer"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxIdleSeconds == 0 {
		c.Database.ConnMaxIdleSeconds = 30
	}
	if c.Database.ConnectTimeoutSecs == 0 {
		c.Database.ConnectTimeoutSecs = 10
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMinio
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.Storage.PhotoBucket == "" {
		c.Storage.PhotoBucket = "photo"
	}
	if c.Storage.IDBucket == "" {
		c.Storage.IDBucket = "idphoto"
	}
	if c.Storage.PermitBucket == "" {
		c.Storage.PermitBucket = "permits"
	}
	if c.Storage.MaxPhotoBytes == 0 {
		c.Storage.MaxPhotoBytes = 5 << 20
	}
	if c.Storage.MaxDocumentBytes == 0 {
		c.Storage.MaxDocumentBytes = 10 << 20
	}

	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if len(c.Users) == 0 {
		c.Users = []User{{Username: DefaultAdminUsername, Password: DefaultAdminPassword}}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Redis.IdempotencyTTLSeconds == 0 {
		c.Redis.IdempotencyTTLSeconds = 300
	}

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 30
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}

	if c.PDF.ServeStored == nil {
		serve := true
		c.PDF.ServeStored = &serve
	}
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
		errs = append(errs, errors.New("database host, name and user are required"))
	}
	if c.Storage.Driver != DriverMinio && c.Storage.Driver != DriverS3 {
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Endpoint == "" {
		errs = append(errs, errors.New("storage.endpoint is required"))
	}
	for _, u := range c.Users {
		if u.Username == "" || (u.Password == "" && u.PasswordHash == "") {
			errs = append(errs, errors.New("every user needs a username and a password or password_hash"))
			break
		}
	}
	return errors.Join(errs...)
}

// DSN builds a pgx connection URL from the database section.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	q.Set("connect_timeout", strconv.Itoa(d.ConnectTimeoutSecs))
	u.RawQuery = q.Encode()
	return u.String()
}

// ServeStoredPDF reports whether stored certificates should be streamed back.
func (c *Config) ServeStoredPDF() bool {
	return c.PDF.ServeStored == nil || *c.PDF.ServeStored
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}

// CheckPassword compares password against the stored hash or plaintext.
func (u *User) CheckPassword(password string) bool {
	if u.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1
}
