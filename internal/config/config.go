// Package config loads the server configuration.
//
// WHERE VALUES COME FROM (lowest to highest precedence):
//
//	1. Defaults set in this package
//	2. A .env file, loaded into the process environment with godotenv
//	3. Real environment variables (godotenv never overrides them)
//	4. Command-line flags bound through viper
//
// Every key is the lower-case form of its environment variable, so PORT is
// read as "port" and STORE_DRIVER as "store_driver".
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Store drivers and password hashers accepted by Validate.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"

	HasherArgon2 = "argon2"
	HasherBcrypt = "bcrypt"
)

// Config holds every setting the server and the seed command read.
type Config struct {
	Port           int
	AllowedOrigins []string
	LogLevel       slog.Level

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	DBPath        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SessionTTL   time.Duration
	CookieSecure bool
	CookieDomain string

	PasswordHasher  string
	Argon2Time      uint32
	Argon2MemoryKiB uint32
	Argon2Threads   uint8
	BcryptCost      int

	StateSecret        string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
	OAuthSuccessURL    string
	OAuthFailureURL    string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string

	UploadDir     string
	PublicBaseURL string

	PlaceholderURL         string
	SeedOnStart            bool
	StrictArticleOwnership bool
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// RedisEnabled reports whether sessions go to Redis instead of memory.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// S3Enabled reports whether avatars go to S3 instead of the local disk.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// New returns a viper instance with the defaults installed and environment
// lookup switched on.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("port", 3000)
	v.SetDefault("allowed_origins", "http://localhost:3000")
	v.SetDefault("log_level", "info")

	v.SetDefault("store_driver", DriverMongo)
	v.SetDefault("mongodb_uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb_database", "ricebook")
	v.SetDefault("db_path", "data/ricebook.db")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("cookie_secure", true)
	v.SetDefault("cookie_domain", "")

	v.SetDefault("password_hasher", HasherArgon2)
	v.SetDefault("argon2_time", 3)
	v.SetDefault("argon2_memory_kib", 64*1024)
	v.SetDefault("argon2_threads", 2)
	v.SetDefault("bcrypt_cost", 12)

	v.SetDefault("state_secret", "")
	v.SetDefault("google_client_id", "")
	v.SetDefault("google_client_secret", "")
	v.SetDefault("google_callback_url", "")
	v.SetDefault("oauth_success_url", "http://localhost:3000/main")
	v.SetDefault("oauth_failure_url", "http://localhost:3000/login")

	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_public_url", "")

	v.SetDefault("upload_dir", "data/uploads")
	v.SetDefault("public_base_url", "")

	v.SetDefault("placeholder_url", "https://jsonplaceholder.typicode.com")
	v.SetDefault("seed_on_start", false)
	v.SetDefault("strict_article_ownership", false)

	// SetDefault registers every key, so AutomaticEnv finds each one under its
	// upper-case name.
	v.AutomaticEnv()
	return v
}

// BindFlags adds the most commonly overridden settings as persistent flags
// of cmd and binds them into v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()
	flags.Int("port", 3000, "HTTP listen port")
	flags.String("store", DriverMongo, "storage backend: mongo or sqlite")
	flags.String("db-path", "data/ricebook.db", "SQLite database file")
	flags.String("mongodb-uri", "mongodb://localhost:27017", "MongoDB connection string")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.Bool("seed", false, "seed an empty store from the placeholder feed at startup")

	bindings := map[string]string{
		"port":          "port",
		"store_driver":  "store",
		"db_path":       "db-path",
		"mongodb_uri":   "mongodb-uri",
		"log_level":     "log-level",
		"seed_on_start": "seed",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("config: binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// LoadEnvFile loads a .env file into the process environment. A missing file
// is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// Load reads a Config out of v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	level, err := parseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:           v.GetInt("port"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		LogLevel:       level,

		StoreDriver:   strings.ToLower(strings.TrimSpace(v.GetString("store_driver"))),
		MongoURI:      v.GetString("mongodb_uri"),
		MongoDatabase: v.GetString("mongodb_database"),
		DBPath:        v.GetString("db_path"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		SessionTTL:   v.GetDuration("session_ttl"),
		CookieSecure: v.GetBool("cookie_secure"),
		CookieDomain: v.GetString("cookie_domain"),

		PasswordHasher:  strings.ToLower(strings.TrimSpace(v.GetString("password_hasher"))),
		Argon2Time:      v.GetUint32("argon2_time"),
		Argon2MemoryKiB: v.GetUint32("argon2_memory_kib"),
		Argon2Threads:   uint8(v.GetUint("argon2_threads")),
		BcryptCost:      v.GetInt("bcrypt_cost"),

		StateSecret:        v.GetString("state_secret"),
		GoogleClientID:     v.GetString("google_client_id"),
		GoogleClientSecret: v.GetString("google_client_secret"),
		GoogleCallbackURL:  v.GetString("google_callback_url"),
		OAuthSuccessURL:    v.GetString("oauth_success_url"),
		OAuthFailureURL:    v.GetString("oauth_failure_url"),

		S3Bucket:    v.GetString("s3_bucket"),
		S3Region:    v.GetString("s3_region"),
		S3Endpoint:  v.GetString("s3_endpoint"),
		S3AccessKey: v.GetString("s3_access_key"),
		S3SecretKey: v.GetString("s3_secret_key"),
		S3PublicURL: v.GetString("s3_public_url"),

		UploadDir:     v.GetString("upload_dir"),
		PublicBaseURL: strings.TrimRight(v.GetString("public_base_url"), "/"),

		PlaceholderURL:         v.GetString("placeholder_url"),
		SeedOnStart:            v.GetBool("seed_on_start"),
		StrictArticleOwnership: v.GetBool("strict_article_ownership"),
	}

	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/google/callback", cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo store"))
		}
		if c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGODB_DATABASE is required for the mongo store"))
		}
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverMongo, DriverSQLite, c.StoreDriver))
	}

	switch c.PasswordHasher {
	case HasherArgon2:
		if c.Argon2Time == 0 || c.Argon2MemoryKiB == 0 || c.Argon2Threads == 0 {
			errs = append(errs, errors.New("ARGON2_TIME, ARGON2_MEMORY_KIB and ARGON2_THREADS must be positive"))
		}
	case HasherBcrypt:
		// bcrypt.MinCost and bcrypt.MaxCost
		if c.BcryptCost < 4 || c.BcryptCost > 31 {
			errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
		}
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_HASHER must be %q or %q, got %q", HasherArgon2, HasherBcrypt, c.PasswordHasher))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}

	if c.GoogleEnabled() && len(c.StateSecret) < 16 {
		errs = append(errs, errors.New("STATE_SECRET of at least 16 characters is required when Google sign-in is configured"))
	}

	if c.S3Enabled() && c.S3Region == "" {
		errs = append(errs, errors.New("S3_REGION is required when S3_BUCKET is set"))
	}
	if !c.S3Enabled() && c.UploadDir == "" {
		errs = append(errs, errors.New("UPLOAD_DIR is required when S3 is not configured"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}

// splitList parses a comma separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
