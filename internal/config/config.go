package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envSensuCheckPath      = "SH_SENSU_CHECK_PATH"
	envSearchPaths         = "SH_HEALTHCHECK_SEARCH_PATHS"
	envStatePath           = "SH_STATE_PATH"
	envLogLevel            = "SH_LOG_LEVEL"
	envInstanceTagsFile    = "SH_INSTANCE_TAGS_FILE"
	envReservedTagPrefix   = "SH_RESERVED_TAG_PREFIX"
	envMetricsTextfile     = "SH_METRICS_TEXTFILE"
	envSlackWebhookURL     = "SH_SLACK_WEBHOOK_URL"
	envWebhookURL          = "SH_WEBHOOK_URL"
	envWebhookTemplate     = "SH_WEBHOOK_TEMPLATE"
	envNotifyDryRun        = "SH_NOTIFY_DRY_RUN"
	searchPathsSeparator   = ","
	defaultLogLevel        = "info"
	defaultSensuCheckPath  = "/etc/sensu/conf.d/checks"
	defaultStatePath       = "/var/lib/sensu-hooks/state.json"
	defaultReservedTagPref = "aws:"
)

var defaultSearchPaths = []string{"/etc/sensu/plugins", "/opt/sensu/embedded/bin"}

// Config describes runtime configuration loaded from the environment.
type Config struct {
	SensuCheckPath    string
	SearchPaths       []string
	StatePath         string
	LogLevel          string
	InstanceTagsFile  string
	ReservedTagPrefix string
	MetricsTextfile   string
	SlackWebhookURL   string
	WebhookURL        string
	WebhookTemplate   string
	NotifyDryRun      bool
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		SensuCheckPath:    defaultSensuCheckPath,
		SearchPaths:       append([]string(nil), defaultSearchPaths...),
		StatePath:         defaultStatePath,
		LogLevel:          defaultLogLevel,
		ReservedTagPrefix: defaultReservedTagPref,
	}

	if value, ok := lookupTrimmed(envSensuCheckPath); ok && value != "" {
		cfg.SensuCheckPath = value
	}

	if value, ok := lookupTrimmed(envSearchPaths); ok {
		paths := splitList(value)
		if len(paths) == 0 {
			return Config{}, fmt.Errorf("%s must list at least one directory", envSearchPaths)
		}
		cfg.SearchPaths = paths
	}

	if value, ok := lookupTrimmed(envStatePath); ok && value != "" {
		cfg.StatePath = value
	}

	if value, ok := lookupTrimmed(envLogLevel); ok && value != "" {
		cfg.LogLevel = value
	}

	if value, ok := lookupTrimmed(envInstanceTagsFile); ok {
		cfg.InstanceTagsFile = value
	}

	// An explicitly empty prefix disables reserved-tag filtering.
	if value, ok := lookupTrimmed(envReservedTagPrefix); ok {
		cfg.ReservedTagPrefix = value
	}

	if value, ok := lookupTrimmed(envMetricsTextfile); ok {
		cfg.MetricsTextfile = value
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}

	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}

	if value, ok := lookupTrimmed(envWebhookTemplate); ok {
		cfg.WebhookTemplate = value
	}

	if value, ok := lookupTrimmed(envNotifyDryRun); ok && value != "" {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envNotifyDryRun, err)
		}
		cfg.NotifyDryRun = dryRun
	}

	if !filepath.IsAbs(cfg.SensuCheckPath) {
		return Config{}, fmt.Errorf("%s must be an absolute path", envSensuCheckPath)
	}

	for _, path := range cfg.SearchPaths {
		if !filepath.IsAbs(path) {
			return Config{}, fmt.Errorf("invalid %s: %q is not an absolute path", envSearchPaths, path)
		}
	}

	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}

	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func splitList(value string) []string {
	parts := strings.Split(value, searchPathsSeparator)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		result = append(result, part)
	}
	return result
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
