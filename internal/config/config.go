package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/blackmichael/bluesky-crosspost/internal/media"
)

const (
	DefaultPort             = 3000
	DefaultLogLevel         = "info"
	DefaultDatabasePath     = "crosspost.db"
	DefaultQueueSize        = 256
	DefaultCharacterBudget  = 300
	DefaultProfileFreshness = time.Hour

	// FileEnvKey names the optional TOML config file.
	FileEnvKey = "CROSSPOST_CONFIG"
)

// PDSConfig describes the PDS hosting the mirror accounts.
type PDSConfig struct {
	// Domain is the PDS hostname. Created handles are <username>.<Domain>.
	Domain string `toml:"domain" validate:"required,hostname"`

	// URL overrides the XRPC base URL, which defaults to https://<Domain>.
	URL string `toml:"url" validate:"omitempty,url"`

	// AdminPassword authorizes invite code creation.
	AdminPassword string `toml:"admin_password"`
}

// MastodonConfig describes the source instance.
type MastodonConfig struct {
	URL       string `toml:"url" validate:"required,url"`
	Token     string `toml:"token"`
	AccountID string `toml:"account_id"`

	// MediaRoot is where the instance stores uploaded media locally, and
	// MediaURLPrefix the public URL those files are served under. Media
	// under the prefix is read from disk instead of downloaded.
	MediaRoot      string `toml:"media_root"`
	MediaURLPrefix string `toml:"media_url_prefix" validate:"required_with=MediaRoot,omitempty,url"`
}

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int `toml:"port" validate:"min=1,max=65535"`

	LogLevel string `toml:"log_level" validate:"oneof=debug info warn error"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `toml:"database_path" validate:"required"`

	// SecretKey is the hex-encoded 32-byte key sealing stored PDS secrets.
	SecretKey string `toml:"secret_key" validate:"required,hexadecimal,len=64"`

	QueueSize int `toml:"queue_size" validate:"min=1"`

	// APIToken, when set, is required as a bearer token on job endpoints.
	APIToken string `toml:"api_token"`

	// CharacterBudget is the post text limit in code points.
	CharacterBudget int `toml:"character_budget" validate:"min=4"`

	// ProfileFreshness is how recently an avatar or banner must have changed
	// to be uploaded again.
	ProfileFreshness time.Duration `toml:"profile_freshness" validate:"min=0"`

	PDS      PDSConfig      `toml:"pds"`
	Mastodon MastodonConfig `toml:"mastodon"`
	Media    media.Policy   `toml:"media"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Port:             DefaultPort,
		LogLevel:         DefaultLogLevel,
		DatabasePath:     DefaultDatabasePath,
		QueueSize:        DefaultQueueSize,
		CharacterBudget:  DefaultCharacterBudget,
		ProfileFreshness: DefaultProfileFreshness,
		Media:            media.DefaultPolicy(),
	}
}

// PDSURL returns the XRPC base URL of the PDS.
func (c *Config) PDSURL() string {
	if c.PDS.URL != "" {
		return c.PDS.URL
	}
	return "https://" + c.PDS.Domain
}

// LocalDomain returns the hostname of the source instance, used to qualify
// mentions of local accounts.
func (c *Config) LocalDomain() string {
	u, err := url.Parse(c.Mastodon.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Load reads configuration from defaults, the TOML file named by
// CROSSPOST_CONFIG (if set), and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv(FileEnvKey)); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = port
	}
	if d := os.Getenv("CROSSPOST_PROFILE_FRESHNESS"); d != "" {
		freshness, err := time.ParseDuration(d)
		if err != nil {
			return fmt.Errorf("invalid CROSSPOST_PROFILE_FRESHNESS: %w", err)
		}
		cfg.ProfileFreshness = freshness
	}

	vars := []struct {
		key string
		dst *string
	}{
		{"CROSSPOST_LOG_LEVEL", &cfg.LogLevel},
		{"CROSSPOST_DATABASE_PATH", &cfg.DatabasePath},
		{"CROSSPOST_SECRET_KEY", &cfg.SecretKey},
		{"CROSSPOST_API_TOKEN", &cfg.APIToken},
		{"ATPROTO_PDS_DOMAIN", &cfg.PDS.Domain},
		{"ATPROTO_PDS_URL", &cfg.PDS.URL},
		{"ATPROTO_PDS_ADMIN_PASS", &cfg.PDS.AdminPassword},
		{"MASTODON_URL", &cfg.Mastodon.URL},
		{"MASTODON_TOKEN", &cfg.Mastodon.Token},
		{"MASTODON_ACCOUNT_ID", &cfg.Mastodon.AccountID},
		{"MASTODON_MEDIA_ROOT", &cfg.Mastodon.MediaRoot},
		{"MASTODON_MEDIA_URL_PREFIX", &cfg.Mastodon.MediaURLPrefix},
	}
	for _, s := range vars {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
