// Package config loads deskflow configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all deskflow configuration.
type Config struct {
	Jira     JiraConfig     `yaml:"jira"`
	Source   SourceConfig   `yaml:"source"`
	Fields   FieldsConfig   `yaml:"fields"`
	Ticket   TicketConfig   `yaml:"ticket"`
	Tracking TrackingConfig `yaml:"tracking"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// JiraConfig configures the Jira Forms and Service Desk endpoints.
type JiraConfig struct {
	CloudID       string      `yaml:"cloud_id"`
	SiteDomain    string      `yaml:"site_domain"`
	ServiceDeskID string      `yaml:"service_desk_id"`
	RequestTypeID string      `yaml:"request_type_id"`
	FormsBaseURL  string      `yaml:"forms_base_url"`
	SiteBaseURL   string      `yaml:"site_base_url"` // overrides https://<site_domain>
	Timeout       string      `yaml:"timeout"`
	Auth          AuthConfig  `yaml:"auth"`
	Retry         RetryConfig `yaml:"retry"`
}

// AuthConfig selects how requests to Jira authenticate.
type AuthConfig struct {
	Mode         string `yaml:"mode"` // basic, oauth2
	Email        string `yaml:"email"`
	APIToken     string `yaml:"api_token"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
}

// RetryConfig is the bounded retry policy for the form definition fetch.
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Interval    string `yaml:"interval"`
	Strategy    string `yaml:"strategy"` // constant, exponential
}

// SourceConfig configures the relational row source.
type SourceConfig struct {
	Driver        string `yaml:"driver"` // postgres, sqlite
	DSN           string `yaml:"dsn"`
	Host          string `yaml:"host"`
	Port          string `yaml:"port"`
	Database      string `yaml:"database"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Table         string `yaml:"table"`
	CreatedColumn string `yaml:"created_column"`
	MaxConns      int    `yaml:"max_conns"`
	QueryTimeout  string `yaml:"query_timeout"`
}

// FieldsConfig maps source columns onto form question IDs.
type FieldsConfig struct {
	Questions        map[string]string `yaml:"questions"` // column -> question ID
	TimeframeColumn  string            `yaml:"timeframe_column"`
	NeededByColumn   string            `yaml:"needed_by_column"`
	EndingDateColumn string            `yaml:"ending_date_column"`
	MultiValueColumn string            `yaml:"multi_value_column"`
}

// TicketConfig shapes the summary and description of created requests.
type TicketConfig struct {
	SummaryPrefix      string   `yaml:"summary_prefix"`
	SummaryColumn      string   `yaml:"summary_column"`
	DescriptionColumns []string `yaml:"description_columns"`
	DefaultDescription string   `yaml:"default_description"`
}

// TrackingConfig locates the tracking state file.
type TrackingConfig struct {
	File string `yaml:"file"`
}

// LoggingConfig configures the console and file log sinks.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // console level: debug, info, warn, error
	File       string `yaml:"file"`   // "" disables the file sink
	Format     string `yaml:"format"` // file encoding: json, console
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Jira: JiraConfig{
			FormsBaseURL: "https://api.atlassian.com",
			Timeout:      "30s",
			Auth: AuthConfig{
				Mode:     "basic",
				TokenURL: "https://auth.atlassian.com/oauth/token",
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				Interval:    "2s",
				Strategy:    "constant",
			},
		},
		Source: SourceConfig{
			Driver:        "postgres",
			Port:          "5432",
			Table:         "phonerequest",
			CreatedColumn: "createdat",
			MaxConns:      2,
			QueryTimeout:  "30s",
		},
		Fields: FieldsConfig{
			Questions: map[string]string{
				"timeframe":             "1",
				"dateneededby":          "3",
				"approximateendingdate": "4",
				"newusername":           "5",
				"phonenumber":           "6",
				"departmentname":        "7",
				"job":                   "8",
				"costcenter":            "9",
				"comments":              "10",
				"handsetsandheadsets":   "159",
			},
			TimeframeColumn:  "timeframe",
			NeededByColumn:   "dateneededby",
			EndingDateColumn: "approximateendingdate",
			MultiValueColumn: "handsetsandheadsets",
		},
		Ticket: TicketConfig{
			SummaryPrefix:      "Phone equipment request",
			SummaryColumn:      "newusername",
			DescriptionColumns: []string{"newusername", "phonenumber", "departmentname", "job", "costcenter", "comments"},
			DefaultDescription: "Phone equipment request",
		},
		Tracking: TrackingConfig{
			File: "tracking.json",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "deskflow.log",
			Format:     "json",
			MaxSizeMB:  5,
			MaxBackups: 3,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override file values in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			// A questions block in the file replaces the default mapping
			// instead of merging into it.
			defaults := cfg.Fields.Questions
			cfg.Fields.Questions = nil
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			if cfg.Fields.Questions == nil {
				cfg.Fields.Questions = defaults
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides copies the deployment environment over file values.
func (c *Config) applyEnvOverrides() {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.Jira.Auth.Email, "JIRA_EMAIL")
	set(&c.Jira.Auth.APIToken, "JIRA_API_TOKEN")
	set(&c.Jira.SiteDomain, "SITE_DOMAIN")
	set(&c.Jira.CloudID, "CLOUD_ID")
	set(&c.Jira.ServiceDeskID, "SERVICE_DESK_ID")
	set(&c.Jira.RequestTypeID, "REQUEST_TYPE_ID")
	if v := strings.TrimSpace(os.Getenv("JIRA_ACCESS_TOKEN")); v != "" {
		c.Jira.Auth.AccessToken = v
		c.Jira.Auth.Mode = "oauth2"
	}

	set(&c.Source.Driver, "DESKFLOW_DB_DRIVER")
	set(&c.Source.DSN, "DESKFLOW_DSN")
	set(&c.Source.Host, "DB_HOST")
	set(&c.Source.Port, "DB_PORT")
	set(&c.Source.Database, "DB_NAME")
	set(&c.Source.User, "DB_USER")
	set(&c.Source.Password, "DB_PASSWORD")
	set(&c.Source.Table, "PHONEREQUEST_TABLE")
	set(&c.Source.CreatedColumn, "CREATEDAT_COL")

	set(&c.Tracking.File, "TRACKING_FILE")
	set(&c.Logging.File, "LOG_FILE")
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"jira.cloud_id":         c.Jira.CloudID,
		"jira.service_desk_id":  c.Jira.ServiceDeskID,
		"jira.request_type_id":  c.Jira.RequestTypeID,
		"source.table":          c.Source.Table,
		"source.created_column": c.Source.CreatedColumn,
		"tracking.file":         c.Tracking.File,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if c.Jira.SiteDomain == "" && c.Jira.SiteBaseURL == "" {
		missing = append(missing, "jira.site_domain")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	switch c.Jira.Auth.Mode {
	case "basic":
		if c.Jira.Auth.Email == "" || c.Jira.Auth.APIToken == "" {
			return fmt.Errorf("basic auth requires jira.auth.email and jira.auth.api_token")
		}
	case "oauth2":
		if c.Jira.Auth.AccessToken == "" && c.Jira.Auth.RefreshToken == "" {
			return fmt.Errorf("oauth2 auth requires jira.auth.access_token or jira.auth.refresh_token")
		}
	default:
		return fmt.Errorf("invalid jira.auth.mode %q: must be basic or oauth2", c.Jira.Auth.Mode)
	}

	switch c.Source.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid source.driver %q: must be postgres or sqlite", c.Source.Driver)
	}

	if c.Jira.Retry.MaxAttempts < 1 {
		return fmt.Errorf("jira.retry.max_attempts must be at least 1")
	}
	switch c.Jira.Retry.Strategy {
	case "", "constant", "exponential":
	default:
		return fmt.Errorf("invalid jira.retry.strategy %q: must be constant or exponential", c.Jira.Retry.Strategy)
	}

	if c.Fields.TimeframeColumn == "" || c.Fields.Questions[c.Fields.TimeframeColumn] == "" {
		return fmt.Errorf("fields.questions must map the timeframe column %q", c.Fields.TimeframeColumn)
	}

	for name, d := range map[string]string{
		"jira.timeout":         c.Jira.Timeout,
		"jira.retry.interval":  c.Jira.Retry.Interval,
		"source.query_timeout": c.Source.QueryTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, d, err)
		}
	}
	return nil
}

// GetJiraTimeout returns the per-request timeout for Jira calls.
func (c *Config) GetJiraTimeout() time.Duration {
	return parseDuration(c.Jira.Timeout, 30*time.Second)
}

// GetRetryInterval returns the delay between form fetch attempts.
func (c *Config) GetRetryInterval() time.Duration {
	return parseDuration(c.Jira.Retry.Interval, 2*time.Second)
}

// GetQueryTimeout returns the row source query timeout.
func (c *Config) GetQueryTimeout() time.Duration {
	return parseDuration(c.Source.QueryTimeout, 30*time.Second)
}

// SiteURL returns the base URL of the Jira site.
func (c *Config) SiteURL() string {
	if c.Jira.SiteBaseURL != "" {
		return strings.TrimRight(c.Jira.SiteBaseURL, "/")
	}
	return "https://" + strings.TrimRight(c.Jira.SiteDomain, "/")
}

// PostgresDSN returns the configured DSN, or builds a keyword/value DSN
// from the individual connection settings.
func (c *Config) PostgresDSN() string {
	if c.Source.DSN != "" {
		return c.Source.DSN
	}
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+quoteDSN(v))
		}
	}
	add("host", c.Source.Host)
	add("port", c.Source.Port)
	add("dbname", c.Source.Database)
	add("user", c.Source.User)
	add("password", c.Source.Password)
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
