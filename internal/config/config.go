// Package config loads the mailer configuration from a JSON or YAML file,
// falling back to environment variables with defaults when no file exists.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport names accepted by the transport setting.
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportGraph  = "graph"
	TransportStdout = "stdout"
)

// DefaultLogFile is the run log destination when none is configured.
const DefaultLogFile = "mail_log.txt"

// Env fallback defaults. Credentials are placeholders so a run works out of
// the box, but every send will fail authentication until they are replaced.
const (
	DefaultSMTPHost     = "smtp.gmail.com"
	DefaultSMTPPort     = 587
	DefaultUsername     = "dummy@gmail.com"
	DefaultPassword     = "dummy_password"
	DefaultSenderName   = "Automated Mailer"
	DefaultSubject      = "Your Subject Here"
	DefaultBody         = "Hello, this is an automated message."
	DefaultDelaySeconds = 90
)

var (
	// ErrInvalid is wrapped by every configuration failure.
	ErrInvalid = errors.New("invalid configuration")

	// ErrMissingKey reports a required key absent from a config file.
	ErrMissingKey = errors.New("missing required key")
)

// requiredKeys must all be present when the configuration comes from a file.
var requiredKeys = []string{
	"smtp_host",
	"smtp_port",
	"username",
	"password",
	"sender_name",
	"subject",
	"body",
	"delay_seconds",
}

// Config holds the complete mailer configuration. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	SMTPHost     string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `json:"smtp_port" yaml:"smtp_port"`
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`
	SenderName   string `json:"sender_name" yaml:"sender_name"`
	Subject      string `json:"subject" yaml:"subject"`
	Body         string `json:"body" yaml:"body"`
	DelaySeconds int    `json:"delay_seconds" yaml:"delay_seconds"`

	Transport string      `json:"transport" yaml:"transport"`
	LogFile   string      `json:"log_file" yaml:"log_file"`
	SES       SESConfig   `json:"ses" yaml:"ses"`
	Graph     GraphConfig `json:"graph" yaml:"graph"`

	// Source is the file the configuration was read from, empty when it
	// was built from environment variables.
	Source string `json:"-" yaml:"-"`
}

// SESConfig holds AWS SES v2 settings for the ses transport.
type SESConfig struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph settings for the graph transport.
type GraphConfig struct {
	TenantID     string `json:"tenant_id" yaml:"tenant_id"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
}

// Load reads the configuration file at path if it exists, otherwise it
// builds the configuration from environment variables.
func Load(path string) (*Config, error) {
	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			return LoadFromFile(path)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: stat %s: %v", ErrInvalid, path, err)
		}
	}
	return LoadFromEnv()
}

// LoadFromFile parses a JSON (default) or YAML (.yaml, .yml) config file.
// Every core key must be present; a malformed or partial file is an error
// and never falls back to defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalid, err)
	}

	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}

	var keys map[string]any
	if err := unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file %s: %v", ErrInvalid, path, err)
	}
	for _, key := range requiredKeys {
		if _, ok := keys[key]; !ok {
			return nil, fmt.Errorf("%w: %s: %w %q", ErrInvalid, path, ErrMissingKey, key)
		}
	}

	cfg := &Config{}
	if err := unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file %s: %v", ErrInvalid, path, err)
	}
	cfg.Source = path

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds the configuration from environment variables, using
// a documented default for every variable that is unset. A .env file in
// the working directory is loaded first without overriding variables that
// are already set.
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env: %v", ErrInvalid, err)
	}

	port, err := envInt("SMTP_PORT", DefaultSMTPPort)
	if err != nil {
		return nil, err
	}
	delay, err := envInt("EMAIL_DELAY", DefaultDelaySeconds)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SMTPHost:     envString("SMTP_HOST", DefaultSMTPHost),
		SMTPPort:     port,
		Username:     envString("SMTP_USERNAME", DefaultUsername),
		Password:     envString("SMTP_PASSWORD", DefaultPassword),
		SenderName:   envString("SENDER_NAME", DefaultSenderName),
		Subject:      envString("EMAIL_SUBJECT", DefaultSubject),
		Body:         envString("EMAIL_BODY", DefaultBody),
		DelaySeconds: delay,
		Transport:    strings.ToLower(os.Getenv("MAIL_TRANSPORT")),
		LogFile:      os.Getenv("MAIL_LOG_FILE"),
		SES: SESConfig{
			Region:          os.Getenv("SES_REGION"),
			AccessKeyID:     os.Getenv("SES_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("SES_SECRET_ACCESS_KEY"),
		},
		Graph: GraphConfig{
			TenantID:     os.Getenv("GRAPH_TENANT_ID"),
			ClientID:     os.Getenv("GRAPH_CLIENT_ID"),
			ClientSecret: os.Getenv("GRAPH_CLIENT_SECRET"),
		},
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr returns the relay address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.SMTPHost, strconv.Itoa(c.SMTPPort))
}

// Delay returns the pause between two consecutive sends.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// Validate checks value ranges and transport-specific settings.
func (c *Config) Validate() error {
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("%w: smtp_port %d out of range 1-65535", ErrInvalid, c.SMTPPort)
	}
	if c.DelaySeconds < 0 {
		return fmt.Errorf("%w: delay_seconds must not be negative, got %d", ErrInvalid, c.DelaySeconds)
	}

	switch c.Transport {
	case TransportSMTP, TransportStdout:
	case TransportSES:
		if c.SES.Region == "" {
			return fmt.Errorf("%w: ses transport requires ses.region", ErrInvalid)
		}
	case TransportGraph:
		if c.Graph.TenantID == "" || c.Graph.ClientID == "" || c.Graph.ClientSecret == "" {
			return fmt.Errorf("%w: graph transport requires graph.tenant_id, graph.client_id and graph.client_secret", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport)
	}
	return nil
}

// finish fills optional settings and validates the result.
func (c *Config) finish() error {
	c.Transport = strings.ToLower(c.Transport)
	if err := mergo.Merge(c, Config{Transport: TransportSMTP, LogFile: DefaultLogFile}); err != nil {
		return fmt.Errorf("%w: failed to apply defaults: %v", ErrInvalid, err)
	}
	return c.Validate()
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalid, key, v)
	}
	return n, nil
}
