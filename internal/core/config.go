package core

import (
	"fmt"
	"os"
	"time"

	"github.com/jo-hoe/chestxray/internal/backend/database"
	"github.com/jo-hoe/chestxray/internal/backend/imageprocessing"
	"github.com/jo-hoe/chestxray/internal/backend/inference"
	"github.com/jo-hoe/chestxray/internal/backend/session"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 5000
	DefaultLogLevel       = "info"
	DefaultDatabaseType   = database.TypeSQLite
	DefaultConnection     = "file:chestxray.db"
	DefaultStoreTimeout   = 10 * time.Second
	DefaultSessionType    = session.TypeRedis
	DefaultRedisAddress   = "localhost:6379"
	DefaultReportTimezone = "America/New_York"
	DefaultBodyLimit      = "20M"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string        `yaml:"type"`
	ConnectionString string        `yaml:"connectionString"`
	Name             string        `yaml:"name"`
	Timeout          time.Duration `yaml:"timeout"`
}

type Session struct {
	Type          string        `yaml:"type"`
	Secret        string        `yaml:"secret"`
	RedisAddress  string        `yaml:"redisAddress"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	TTL           time.Duration `yaml:"ttl"`
	SecureCookie  bool          `yaml:"secureCookie"`
}

type Inference struct {
	BaseURL          string        `yaml:"baseURL"`
	APIName          string        `yaml:"apiName"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	MaxAttempts      int           `yaml:"maxAttempts"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`
	MaxResponseBytes int64         `yaml:"maxResponseBytes"`
}

type ServiceConfig struct {
	Port           int             `yaml:"port"`
	LogLevel       string          `yaml:"logLevel"`
	BodyLimit      string          `yaml:"bodyLimit"`
	ReportTimezone string          `yaml:"reportTimezone"`
	Database       Database        `yaml:"database"`
	Session        Session         `yaml:"session"`
	Inference      Inference       `yaml:"inference"`
	Commands       []CommandConfig `yaml:"commands"`
}

// LoadConfig loads configuration from the specified YAML file. ${VAR} references
// are expanded from the environment before parsing.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config ServiceConfig
	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return &config, nil
}

// ApplyDefaults fills every omitted field with its default value
func (config *ServiceConfig) ApplyDefaults() {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}
	if config.BodyLimit == "" {
		config.BodyLimit = DefaultBodyLimit
	}
	if config.ReportTimezone == "" {
		config.ReportTimezone = DefaultReportTimezone
	}

	if config.Database.Type == "" {
		config.Database.Type = DefaultDatabaseType
	}
	if config.Database.ConnectionString == "" && config.Database.Type == database.TypeSQLite {
		config.Database.ConnectionString = DefaultConnection
	}
	if config.Database.Name == "" {
		config.Database.Name = database.DefaultMongoDatabaseName
	}
	if config.Database.Timeout <= 0 {
		config.Database.Timeout = DefaultStoreTimeout
	}

	if config.Session.Type == "" {
		config.Session.Type = DefaultSessionType
	}
	if config.Session.RedisAddress == "" {
		config.Session.RedisAddress = DefaultRedisAddress
	}
	if config.Session.TTL <= 0 {
		config.Session.TTL = session.DefaultTTL
	}

	if config.Inference.APIName == "" {
		config.Inference.APIName = inference.DefaultAPIName
	}
	if config.Inference.PollInterval <= 0 {
		config.Inference.PollInterval = inference.DefaultPollInterval
	}
	if config.Inference.MaxAttempts <= 0 {
		config.Inference.MaxAttempts = inference.DefaultMaxAttempts
	}
	if config.Inference.RequestTimeout <= 0 {
		config.Inference.RequestTimeout = inference.DefaultRequestTimeout
	}
	if config.Inference.MaxResponseBytes <= 0 {
		config.Inference.MaxResponseBytes = inference.DefaultMaxResponseBytes
	}

	if len(config.Commands) == 0 {
		config.Commands = []CommandConfig{{Name: imageprocessing.CompressCommandName}}
	}
}

// Validate checks a config that already had its defaults applied
func (config *ServiceConfig) Validate() error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", config.Port)
	}
	if _, err := ParseLogLevel(config.LogLevel); err != nil {
		return err
	}
	if _, err := time.LoadLocation(config.ReportTimezone); err != nil {
		return fmt.Errorf("unknown report timezone %q: %w", config.ReportTimezone, err)
	}

	switch config.Database.Type {
	case database.TypeSQLite, database.TypeMongoDB:
	default:
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}
	if config.Database.ConnectionString == "" {
		return fmt.Errorf("database connectionString is required for %s", config.Database.Type)
	}

	switch config.Session.Type {
	case session.TypeRedis:
	case session.TypeJWT:
		if len(config.Session.Secret) < session.MinSecretLength {
			return fmt.Errorf("session secret must be at least %d bytes for %s sessions", session.MinSecretLength, session.TypeJWT)
		}
	default:
		return fmt.Errorf("unsupported session type: %s", config.Session.Type)
	}

	if config.Inference.BaseURL == "" {
		return fmt.Errorf("inference baseURL is required")
	}

	if err := validateCommands(config.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	return nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true

		if !imageprocessing.IsKnownCommand(cmd.Name) {
			return fmt.Errorf("unknown command %s, known commands: %v", cmd.Name, imageprocessing.KnownCommands())
		}
		if _, err := imageprocessing.NewCommand(cmd.Name, cmd.Params); err != nil {
			return err
		}
	}

	return nil
}

func (config *ServiceConfig) commandConfigs() []imageprocessing.CommandConfig {
	configs := make([]imageprocessing.CommandConfig, 0, len(config.Commands))
	for _, cmd := range config.Commands {
		configs = append(configs, imageprocessing.CommandConfig{Name: cmd.Name, Params: cmd.Params})
	}
	return configs
}

func (config *ServiceConfig) sessionConfig() session.Config {
	return session.Config{
		Type:          config.Session.Type,
		Secret:        config.Session.Secret,
		RedisAddress:  config.Session.RedisAddress,
		RedisPassword: config.Session.RedisPassword,
		RedisDB:       config.Session.RedisDB,
		TTL:           config.Session.TTL,
	}
}

func (config *ServiceConfig) inferenceConfig() inference.Config {
	return inference.Config{
		BaseURL:          config.Inference.BaseURL,
		APIName:          config.Inference.APIName,
		PollInterval:     config.Inference.PollInterval,
		MaxAttempts:      config.Inference.MaxAttempts,
		RequestTimeout:   config.Inference.RequestTimeout,
		MaxResponseBytes: config.Inference.MaxResponseBytes,
	}
}
