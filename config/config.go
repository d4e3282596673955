package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	GRPC          GRPCConfig          `yaml:"grpc"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Registration  RegistrationConfig  `yaml:"registration"`
	Tickets       TicketsConfig       `yaml:"tickets"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Auth          AuthConfig          `yaml:"auth"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Worker        WorkerConfig        `yaml:"worker"`
	Log           LogConfig           `yaml:"log"`
	Seed          SeedConfig          `yaml:"seed"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver             string `yaml:"driver"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Name               string `yaml:"name"`
	SSLMode            string `yaml:"ssl_mode"`
	MaxConns           int32  `yaml:"max_conns"`
	AutoMigrate        bool   `yaml:"auto_migrate"`
	MaxConflictRetries int    `yaml:"max_conflict_retries"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// CacheTTLSeconds bounds how stale the exhibition catalog may be. Zero disables caching.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

func (r RedisConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSeconds) * time.Second
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	RegistrationsTopic string   `yaml:"registrations_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type RegistrationConfig struct {
	MaxQuantity int `yaml:"max_quantity"`
}

type TicketsConfig struct {
	SigningKey string `yaml:"signing_key"`
	QRSize     int    `yaml:"qr_size"`
}

const (
	NotificationsDisabled = "disabled"
	NotificationsLive     = "live"

	QueueInline = "inline"
	QueueKafka  = "kafka"
)

type NotificationsConfig struct {
	Mode           string     `yaml:"mode"`
	Queue          string     `yaml:"queue"`
	Workers        int        `yaml:"workers"`
	TimeoutSeconds int        `yaml:"timeout_seconds"`
	SMTP           SMTPConfig `yaml:"smtp"`
}

func (n NotificationsConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ServiceName   string `yaml:"service_name"`
	CollectorAddr string `yaml:"collector_addr"`
}

type WorkerConfig struct {
	RedeliverySweepMinutes int `yaml:"redelivery_sweep_minutes"`
	RedeliveryBatch        int `yaml:"redelivery_batch"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// SeedConfig populates the memory driver. It is ignored for postgres.
type SeedConfig struct {
	Exhibitions []SeedExhibition `yaml:"exhibitions"`
	Registrants []SeedRegistrant `yaml:"registrants"`
}

type SeedExhibition struct {
	ID        int64     `yaml:"id"`
	Title     string    `yaml:"title"`
	Location  string    `yaml:"location"`
	StartsAt  time.Time `yaml:"starts_at"`
	EndsAt    time.Time `yaml:"ends_at"`
	Capacity  int       `yaml:"capacity"`
	Active    bool      `yaml:"active"`
	Published bool      `yaml:"published"`
}

type SeedRegistrant struct {
	ID      int64  `yaml:"id"`
	Email   string `yaml:"email"`
	Name    string `yaml:"name"`
	IsAdmin bool   `yaml:"is_admin"`
}

// LoadConfig reads the YAML file at path, expanding ${VAR} references from the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Address: ":8080"},
		GRPC: GRPCConfig{Address: ":9090"},
		Database: DatabaseConfig{
			Driver:             DriverPostgres,
			Port:               5432,
			SSLMode:            "disable",
			MaxConns:           20,
			MaxConflictRetries: 3,
		},
		Redis:        RedisConfig{CacheTTLSeconds: 30},
		Kafka:        KafkaConfig{GroupID: "exhibitions-worker"},
		Registration: RegistrationConfig{MaxQuantity: 10},
		Tickets:      TicketsConfig{QRSize: 512},
		Notifications: NotificationsConfig{
			Mode:           NotificationsDisabled,
			Queue:          QueueInline,
			Workers:        4,
			TimeoutSeconds: 10,
			SMTP:           SMTPConfig{Port: 587},
		},
		Auth:      AuthConfig{Issuer: "exhibitions"},
		Telemetry: TelemetryConfig{ServiceName: "exhibitions"},
		Worker:    WorkerConfig{RedeliverySweepMinutes: 5, RedeliveryBatch: 50},
		Log:       LogConfig{Level: "info"},
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of postgres|memory", c.Database.Driver))
	}
	if c.Database.MaxConflictRetries < 0 {
		errs = append(errs, errors.New("database.max_conflict_retries must not be negative"))
	}
	if c.Registration.MaxQuantity <= 0 {
		errs = append(errs, errors.New("registration.max_quantity must be positive"))
	}
	if c.Tickets.SigningKey == "" {
		errs = append(errs, errors.New("tickets.signing_key is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Notifications.Mode {
	case NotificationsDisabled:
	case NotificationsLive:
		if c.Notifications.SMTP.Host == "" {
			errs = append(errs, errors.New("notifications.smtp.host is required in live mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifications.mode %q is not one of disabled|live", c.Notifications.Mode))
	}
	switch c.Notifications.Queue {
	case QueueInline:
		if c.Notifications.Workers <= 0 {
			errs = append(errs, errors.New("notifications.workers must be positive"))
		}
	case QueueKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.NotificationsTopic == "" {
			errs = append(errs, errors.New("kafka queue requires kafka.brokers and kafka.notifications_topic"))
		}
		if c.Database.Driver == DriverMemory {
			errs = append(errs, errors.New("kafka queue requires the postgres driver; the worker cannot see the memory store"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifications.queue %q is not one of inline|kafka", c.Notifications.Queue))
	}
	return errors.Join(errs...)
}
