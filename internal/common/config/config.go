package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Delivery      DeliveryConfig          `mapstructure:"delivery"`
	Entities      map[string]EntityConfig `mapstructure:"entities"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPAddress string `mapstructure:"http_address"`
}

type DatabaseConfig struct {
	// Driver selects the reminder and notification stores: "postgres" or "memory".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address has been configured.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type SchedulerConfig struct {
	TickSpec       string `mapstructure:"tick_spec"`
	SweepSpec      string `mapstructure:"sweep_spec"`
	RetentionDays  int    `mapstructure:"retention_days"`
	LeaseEnabled   bool   `mapstructure:"lease_enabled"`
	LeaseKeyPrefix string `mapstructure:"lease_key_prefix"`
	LeaseTTL       int    `mapstructure:"lease_ttl"` // milliseconds
}

type DeliveryConfig struct {
	PingInterval   int      `mapstructure:"ping_interval"` // milliseconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // milliseconds
	ReadLimit      int64    `mapstructure:"read_limit"`    // bytes
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// EntityConfig describes where entities of one type live.
type EntityConfig struct {
	Table       string `mapstructure:"table"`
	TitleColumn string `mapstructure:"title_column"`
	UserColumn  string `mapstructure:"user_column"`
}

type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds
}

type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled           bool   `mapstructure:"enabled"`
		PriorityThreshold string `mapstructure:"priority_threshold"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	DirectoryCacheTTL int `mapstructure:"directory_cache_ttl"` // seconds
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
