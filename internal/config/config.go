package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"    validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
}

// ServerConfig contains the settings for the ledger read API and logging.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// QueueConfig contains the message-queue transport settings.
// Endpoints maps a worker name from the kind catalog to the queue
// that worker consumes; every worker a process runs must have one.
type QueueConfig struct {
	URL       string            `mapstructure:"url"       validate:"required"`
	Endpoints map[string]string `mapstructure:"endpoints" validate:"required,min=1"`
}

// RedisConfig contains the settings for the delayed-dispatch scheduler
// and the progress event feed.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"   validate:"gte=0"`
}

// WorkerConfig identifies which catalog worker this process consumes for.
type WorkerConfig struct {
	Name string `mapstructure:"name" validate:"required"`
}
