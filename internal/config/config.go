package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Storage   StorageConfig   `json:"storage"`
	OAuth     OAuthConfig     `json:"oauth"`
	Vision    VisionConfig    `json:"vision"`
	Pricing   PricingConfig   `json:"pricing"`
	Security  SecurityConfig  `json:"security"`
	Rendering RenderingConfig `json:"rendering"`
	Bulk      BulkConfig      `json:"bulk"`
	Workers   WorkersConfig   `json:"workers"`
	Email     EmailConfig     `json:"email"`
	Logging   LoggingConfig   `json:"logging"`
}

// Duration accepts either a Go duration string ("30s") or nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ReadTimeout    Duration `json:"read_timeout"`
	WriteTimeout   Duration `json:"write_timeout"`
	IdleTimeout    Duration `json:"idle_timeout"`
	AllowedOrigins []string `json:"allowed_origins"`
	MaxUploadMB    int64    `json:"max_upload_mb"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	User           string   `json:"user"`
	Password       string   `json:"password"`
	DBName         string   `json:"db_name"`
	SSLMode        string   `json:"ssl_mode"`
	MaxConnections int      `json:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime"`
}

// StorageConfig selects the object store. Driver is "s3" or "memory".
type StorageConfig struct {
	Driver          string   `json:"driver"`
	Bucket          string   `json:"bucket"`
	Region          string   `json:"region"`
	Endpoint        string   `json:"endpoint"`
	AccessKeyID     string   `json:"access_key_id"`
	SecretAccessKey string   `json:"secret_access_key"`
	UsePathStyle    bool     `json:"use_path_style"`
	PresignTTL      Duration `json:"presign_ttl"`
}

// OAuthConfig holds the Google OAuth client.
type OAuthConfig struct {
	GoogleClientID     string   `json:"google_client_id"`
	GoogleClientSecret string   `json:"google_client_secret"`
	GoogleRedirectURL  string   `json:"google_redirect_url"`
	StateTTL           Duration `json:"state_ttl"`
}

// VisionConfig holds the Gemini settings for image analysis. An empty
// BaseURL uses the public Gemini API.
type VisionConfig struct {
	BaseURL    string   `json:"base_url"`
	APIVersion string   `json:"api_version"`
	Model      string   `json:"model"`
	APIKey     string   `json:"api_key"`
	Timeout    Duration `json:"timeout"`
}

// PricingConfig holds bulk stamping prices.
type PricingConfig struct {
	PricePerPage float64 `json:"price_per_page"`
	Currency     string  `json:"currency"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret     string   `json:"jwt_secret"`
	TokenIssuer   string   `json:"token_issuer"`
	SessionTTL    Duration `json:"session_ttl"`
	SignerLinkTTL Duration `json:"signer_link_ttl"`
}

// RenderingConfig controls rasterization of stamps and documents.
type RenderingConfig struct {
	RasterScale     float64  `json:"raster_scale"`
	PreviewWidth    int      `json:"preview_width"`
	PreviewDPI      int      `json:"preview_dpi"`
	JPEGQuality     int      `json:"jpeg_quality"`
	PDFToPPMCommand string   `json:"pdftoppm_command"`
	SofficeCommand  string   `json:"soffice_command"`
	CommandTimeout  Duration `json:"command_timeout"`
}

// BulkConfig controls in-memory bulk jobs.
type BulkConfig struct {
	JobTTL      Duration `json:"job_ttl"`
	MaxFiles    int      `json:"max_files"`
	ArchiveName string   `json:"archive_name"`
}

// WorkersConfig controls the cleanup worker.
type WorkersConfig struct {
	CleanupSchedule string   `json:"cleanup_schedule"`
	Retention       Duration `json:"retention"`
	BatchSize       int      `json:"batch_size"`
}

// EmailConfig controls signer invitations.
type EmailConfig struct {
	Sender        string `json:"sender"`
	Region        string `json:"region"`
	PublicBaseURL string `json:"public_base_url"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    Duration(30 * time.Second),
			WriteTimeout:   Duration(60 * time.Second),
			IdleTimeout:    Duration(120 * time.Second),
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    25,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "stamp_studio",
			SSLMode:        "disable",
			MaxConnections: 20,
			MaxIdleConns:   5,
			MaxLifetime:    Duration(30 * time.Minute),
		},
		Storage: StorageConfig{
			Driver:     "memory",
			Bucket:     "stamp-studio-documents",
			Region:     "af-south-1",
			PresignTTL: Duration(15 * time.Minute),
		},
		OAuth: OAuthConfig{
			GoogleRedirectURL: "http://localhost:8080/api/auth/google/callback",
			StateTTL:          Duration(10 * time.Minute),
		},
		Vision: VisionConfig{
			APIVersion: "v1beta",
			Model:      "gemini-2.5-flash",
			Timeout:    Duration(30 * time.Second),
		},
		Pricing: PricingConfig{
			PricePerPage: 10,
			Currency:     "KES",
		},
		Security: SecurityConfig{
			TokenIssuer:   "stamp-studio",
			SessionTTL:    Duration(24 * time.Hour),
			SignerLinkTTL: Duration(7 * 24 * time.Hour),
		},
		Rendering: RenderingConfig{
			RasterScale:     4,
			PreviewWidth:    1240,
			PreviewDPI:      150,
			JPEGQuality:     85,
			PDFToPPMCommand: "pdftoppm",
			SofficeCommand:  "soffice",
			CommandTimeout:  Duration(2 * time.Minute),
		},
		Bulk: BulkConfig{
			JobTTL:      Duration(2 * time.Hour),
			MaxFiles:    50,
			ArchiveName: "stamped_documents.zip",
		},
		Workers: WorkersConfig{
			CleanupSchedule: "@every 15m",
			Retention:       Duration(30 * 24 * time.Hour),
			BatchSize:       100,
		},
		Email: EmailConfig{
			Region:        "eu-west-1",
			PublicBaseURL: "http://localhost:5173",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file and environment variables. A
// .env file in the working directory is applied to the environment first;
// variables that are already set win.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := Default()

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	str("SERVER_HOST", &config.Server.Host)
	integer("SERVER_PORT", &config.Server.Port)
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	str("DATABASE_HOST", &config.Database.Host)
	integer("DATABASE_PORT", &config.Database.Port)
	str("DATABASE_USER", &config.Database.User)
	str("DATABASE_PASSWORD", &config.Database.Password)
	str("DATABASE_DBNAME", &config.Database.DBName)
	str("DATABASE_SSLMODE", &config.Database.SSLMode)

	str("STORAGE_DRIVER", &config.Storage.Driver)
	str("STORAGE_BUCKET", &config.Storage.Bucket)
	str("AWS_REGION", &config.Storage.Region)
	str("STORAGE_ENDPOINT", &config.Storage.Endpoint)
	str("AWS_ACCESS_KEY_ID", &config.Storage.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &config.Storage.SecretAccessKey)

	str("GOOGLE_CLIENT_ID", &config.OAuth.GoogleClientID)
	str("GOOGLE_CLIENT_SECRET", &config.OAuth.GoogleClientSecret)
	str("GOOGLE_REDIRECT_URL", &config.OAuth.GoogleRedirectURL)

	str("VISION_BASE_URL", &config.Vision.BaseURL)
	str("VISION_API_VERSION", &config.Vision.APIVersion)
	str("VISION_MODEL", &config.Vision.Model)
	str("GEMINI_API_KEY", &config.Vision.APIKey)
	duration("VISION_TIMEOUT", &config.Vision.Timeout)

	float("PRICE_PER_PAGE", &config.Pricing.PricePerPage)
	str("PRICING_CURRENCY", &config.Pricing.Currency)

	str("JWT_SECRET", &config.Security.JWTSecret)
	duration("SESSION_TTL", &config.Security.SessionTTL)

	float("RASTER_SCALE", &config.Rendering.RasterScale)
	str("PDFTOPPM_COMMAND", &config.Rendering.PDFToPPMCommand)
	str("SOFFICE_COMMAND", &config.Rendering.SofficeCommand)

	str("CLEANUP_SCHEDULE", &config.Workers.CleanupSchedule)
	duration("RETENTION", &config.Workers.Retention)

	str("EMAIL_SENDER", &config.Email.Sender)
	str("PUBLIC_BASE_URL", &config.Email.PublicBaseURL)

	str("LOG_LEVEL", &config.Logging.Level)

	return errors.Join(errs...)
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
