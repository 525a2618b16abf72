package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database      DatabaseConfig `yaml:"database"`
	RabbitMQ      RabbitMQConfig `yaml:"rabbitmq"`
	HTTP          HTTPConfig     `yaml:"http"`
	Posting       PostingConfig  `yaml:"posting"`
	Dedup         DedupConfig    `yaml:"dedup"`
	Queue         QueueConfig    `yaml:"queue"`
	Media         MediaConfig    `yaml:"media"`
	Alerts        AlertsConfig   `yaml:"alerts"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	YouTube       YouTubeConfig  `yaml:"youtube"`
	Twitter       TwitterConfig  `yaml:"twitter"`
	Niches        []NicheConfig  `yaml:"niches"`
	Priorities    map[string]int `yaml:"priorities"`
	TemplatesPath string         `yaml:"templates_path"`
	LogLevel      string         `yaml:"log_level"`
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

// Enabled reports whether post events should be published.
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Retry     RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// PostingConfig controls the rate/window gate and the poster job.
type PostingConfig struct {
	MinInterval     time.Duration `yaml:"min_interval"`
	MonthlyCap      int           `yaml:"monthly_cap"`
	WindowStartHour *int          `yaml:"window_start_hour"`
	WindowEndHour   *int          `yaml:"window_end_hour"`
	PostTimeout     time.Duration `yaml:"post_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	DryRun          bool          `yaml:"dry_run"`
}

type DedupConfig struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	SimilarityWindow    time.Duration `yaml:"similarity_window"`
}

type QueueConfig struct {
	StaleAfter        time.Duration `yaml:"stale_after"`
	StaleInterval     time.Duration `yaml:"stale_interval"`
	Retention         time.Duration `yaml:"retention"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
	MaxTextLength     int           `yaml:"max_text_length"`
	SourcePollDefault time.Duration `yaml:"source_poll_default"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
}

type MediaConfig struct {
	Dir      string        `yaml:"dir"`
	MaxBytes int64         `yaml:"max_bytes"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	MaxFiles int           `yaml:"max_files"`
	Timeout  time.Duration `yaml:"timeout"`
}

type AlertsConfig struct {
	DiscordWebhookURL      string        `yaml:"discord_webhook_url"`
	SourceFailureThreshold int           `yaml:"source_failure_threshold"`
	Timeout                time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type YouTubeConfig struct {
	APIKey string `yaml:"api_key"`
}

type TwitterConfig struct {
	BearerToken string `yaml:"bearer_token"`
}

// NicheConfig names a content vertical and the account it posts to.
type NicheConfig struct {
	Name        string            `yaml:"name"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

type CredentialsConfig struct {
	APIKey            string `yaml:"api_key"`
	APISecret         string `yaml:"api_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "autopost"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "post_events"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "autopost_post_events"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 15 * time.Second
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "autopost/1.0"
	}
	if c.HTTP.Retry.MaxAttempts == 0 {
		c.HTTP.Retry.MaxAttempts = 3
	}
	if c.HTTP.Retry.InitialBackoff == 0 {
		c.HTTP.Retry.InitialBackoff = 1 * time.Second
	}
	if c.HTTP.Retry.MaxBackoff == 0 {
		c.HTTP.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Posting.MinInterval == 0 {
		c.Posting.MinInterval = 1200 * time.Second
	}
	if c.Posting.MonthlyCap == 0 {
		c.Posting.MonthlyCap = 1500
	}
	if c.Posting.WindowStartHour == nil {
		c.Posting.WindowStartHour = intPtr(8)
	}
	if c.Posting.WindowEndHour == nil {
		c.Posting.WindowEndHour = intPtr(22)
	}
	if c.Posting.PostTimeout == 0 {
		c.Posting.PostTimeout = 30 * time.Second
	}
	if c.Posting.PollInterval == 0 {
		c.Posting.PollInterval = 2 * time.Minute
	}
	if c.Dedup.SimilarityThreshold == 0 {
		c.Dedup.SimilarityThreshold = 0.65
	}
	if c.Dedup.SimilarityWindow == 0 {
		c.Dedup.SimilarityWindow = 24 * time.Hour
	}
	if c.Queue.StaleAfter == 0 {
		c.Queue.StaleAfter = 6 * time.Hour
	}
	if c.Queue.StaleInterval == 0 {
		c.Queue.StaleInterval = 6 * time.Hour
	}
	if c.Queue.Retention == 0 {
		c.Queue.Retention = 30 * 24 * time.Hour
	}
	if c.Queue.RetentionInterval == 0 {
		c.Queue.RetentionInterval = 24 * time.Hour
	}
	if c.Queue.MaxTextLength == 0 {
		c.Queue.MaxTextLength = 280
	}
	if c.Queue.SourcePollDefault == 0 {
		c.Queue.SourcePollDefault = 900 * time.Second
	}
	if c.Queue.JobTimeout == 0 {
		c.Queue.JobTimeout = 5 * time.Minute
	}
	if c.Media.Dir == "" {
		c.Media.Dir = "data/media"
	}
	if c.Media.MaxBytes == 0 {
		c.Media.MaxBytes = 5 * 1024 * 1024
	}
	if c.Media.Width == 0 {
		c.Media.Width = 1200
	}
	if c.Media.Height == 0 {
		c.Media.Height = 675
	}
	if c.Media.MaxFiles == 0 {
		c.Media.MaxFiles = 500
	}
	if c.Media.Timeout == 0 {
		c.Media.Timeout = 20 * time.Second
	}
	if c.Alerts.SourceFailureThreshold == 0 {
		c.Alerts.SourceFailureThreshold = 3
	}
	if c.Alerts.Timeout == 0 {
		c.Alerts.Timeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects settings the gates cannot work with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Niches) == 0 {
		errs = append(errs, errors.New("at least one niche is required"))
	}
	seen := make(map[string]bool, len(c.Niches))
	for _, n := range c.Niches {
		if n.Name == "" {
			errs = append(errs, errors.New("niche name is required"))
			continue
		}
		if seen[n.Name] {
			errs = append(errs, fmt.Errorf("duplicate niche %q", n.Name))
		}
		seen[n.Name] = true
	}

	start, end := *c.Posting.WindowStartHour, *c.Posting.WindowEndHour
	if start < 0 || start > 23 {
		errs = append(errs, fmt.Errorf("posting.window_start_hour out of range: %d", start))
	}
	if end < 0 || end > 24 {
		errs = append(errs, fmt.Errorf("posting.window_end_hour out of range: %d", end))
	}
	if c.Posting.MonthlyCap < 0 {
		errs = append(errs, fmt.Errorf("posting.monthly_cap must not be negative: %d", c.Posting.MonthlyCap))
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("dedup.similarity_threshold must be in (0, 1]: %v", c.Dedup.SimilarityThreshold))
	}
	for name, d := range map[string]time.Duration{
		"posting.poll_interval":     c.Posting.PollInterval,
		"posting.post_timeout":      c.Posting.PostTimeout,
		"queue.stale_after":         c.Queue.StaleAfter,
		"queue.stale_interval":      c.Queue.StaleInterval,
		"queue.retention":           c.Queue.Retention,
		"queue.retention_interval":  c.Queue.RetentionInterval,
		"queue.source_poll_default": c.Queue.SourcePollDefault,
		"queue.job_timeout":         c.Queue.JobTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive: %s", name, d))
		}
	}
	if c.Posting.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("posting.min_interval must not be negative: %s", c.Posting.MinInterval))
	}
	for category, p := range c.Priorities {
		if p < 1 {
			errs = append(errs, fmt.Errorf("priority for %q must be >= 1: %d", category, p))
		}
	}

	return errors.Join(errs...)
}

// Niche returns the configuration for the named niche.
func (c *Config) Niche(name string) (NicheConfig, bool) {
	for _, n := range c.Niches {
		if n.Name == name {
			return n, true
		}
	}
	return NicheConfig{}, false
}

func intPtr(v int) *int {
	return &v
}
