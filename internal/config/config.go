// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Bluetooth BluetoothConfig `mapstructure:"bluetooth"`
	Transport TransportConfig `mapstructure:"transport"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	KeepAlive KeepAliveConfig `mapstructure:"keepalive"`
	Receipt   ReceiptConfig   `mapstructure:"receipt"`
	Printing  PrintingConfig  `mapstructure:"printing"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents the print-job journal database.
// When disabled the journal is kept in memory.
type DatabaseConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	DBName        string        `mapstructure:"dbname"`
	SSLMode       string        `mapstructure:"sslmode"`
	MaxOpenConns  int           `mapstructure:"max_open_conns"`
	MaxIdleConns  int           `mapstructure:"max_idle_conns"`
	MaxLifetime   time.Duration `mapstructure:"max_lifetime"`
	MemoryJobCap  int           `mapstructure:"memory_job_cap"`
	RunMigrations bool          `mapstructure:"run_migrations"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// BluetoothConfig selects the platform backend and the discovery defaults
type BluetoothConfig struct {
	Backend           string        `mapstructure:"backend"`
	Adapter           string        `mapstructure:"adapter"`
	HCIDeviceID       int           `mapstructure:"hci_device_id"`
	MTU               int           `mapstructure:"mtu"`
	ScanTimeout       time.Duration `mapstructure:"scan_timeout"`
	ScanPollInterval  time.Duration `mapstructure:"scan_poll_interval"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ServiceUUIDs      []string      `mapstructure:"service_uuids"`
	NamePrefixes      []string      `mapstructure:"name_prefixes"`
	AcceptAll         bool          `mapstructure:"accept_all"`
	PreferWithoutResp bool          `mapstructure:"prefer_write_without_response"`
	RFCOMM            RFCOMMConfig  `mapstructure:"rfcomm"`
}

// RFCOMMConfig represents the classic serial port profile backend
type RFCOMMConfig struct {
	PortPatterns []string      `mapstructure:"port_patterns"`
	BaudRate     int           `mapstructure:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// TransportConfig represents chunked write configuration
type TransportConfig struct {
	ChunkSize   int           `mapstructure:"chunk_size"`
	PacingDelay time.Duration `mapstructure:"pacing_delay"`
}

// ReconnectConfig represents automatic reconnect configuration
type ReconnectConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// KeepAliveConfig represents keep-alive probe configuration
type KeepAliveConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	ReconnectWindow time.Duration `mapstructure:"reconnect_window"`
}

// ReceiptConfig represents receipt layout configuration
type ReceiptConfig struct {
	PaperWidth     int    `mapstructure:"paper_width"`
	FeedLines      int    `mapstructure:"feed_lines"`
	CutMode        string `mapstructure:"cut_mode"`
	CurrencyPrefix string `mapstructure:"currency_prefix"`
}

// PrintingConfig represents print submission configuration
type PrintingConfig struct {
	JobTimeout time.Duration   `mapstructure:"job_timeout"`
	AutoPrint  AutoPrintConfig `mapstructure:"auto_print"`
}

// AutoPrintConfig controls printing of completed orders without an operator
type AutoPrintConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	Delay                  time.Duration `mapstructure:"delay"`
	RequireHealthy         bool          `mapstructure:"require_healthy"`
	QueueWhileDisconnected bool          `mapstructure:"queue_while_disconnected"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

const (
	BackendBlueZ  = "bluez"
	BackendGoBLE  = "goble"
	BackendRFCOMM = "rfcomm"

	MinKeepAliveInterval = 10 * time.Second
	MaxKeepAliveInterval = 30 * time.Second
)

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFrom(viper.New(), "")
}

// LoadFrom reads configuration through v. An explicit file must exist; the
// search-path config.yaml is optional and defaults plus env apply without it.
func LoadFrom(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/printer-service")
	}

	// Environment variable support
	v.SetEnvPrefix("PRINTER_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "printer_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.memory_job_cap", 500)
	v.SetDefault("database.run_migrations", true)

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Bluetooth defaults
	v.SetDefault("bluetooth.backend", BackendBlueZ)
	v.SetDefault("bluetooth.adapter", "hci0")
	v.SetDefault("bluetooth.hci_device_id", 0)
	v.SetDefault("bluetooth.mtu", 185)
	v.SetDefault("bluetooth.scan_timeout", "10s")
	v.SetDefault("bluetooth.scan_poll_interval", "1s")
	v.SetDefault("bluetooth.connect_timeout", "10s")
	v.SetDefault("bluetooth.service_uuids", []string{})
	v.SetDefault("bluetooth.name_prefixes", []string{})
	v.SetDefault("bluetooth.accept_all", false)
	v.SetDefault("bluetooth.prefer_write_without_response", true)
	v.SetDefault("bluetooth.rfcomm.port_patterns", []string{"/dev/rfcomm*"})
	v.SetDefault("bluetooth.rfcomm.baud_rate", 115200)
	v.SetDefault("bluetooth.rfcomm.read_timeout", "500ms")

	// Transport defaults
	v.SetDefault("transport.chunk_size", 20)
	v.SetDefault("transport.pacing_delay", "10ms")

	// Reconnect defaults
	v.SetDefault("reconnect.enabled", true)
	v.SetDefault("reconnect.delay", "2s")
	v.SetDefault("reconnect.max_attempts", 10)

	// Keep-alive defaults
	v.SetDefault("keepalive.enabled", true)
	v.SetDefault("keepalive.interval", "15s")
	v.SetDefault("keepalive.reconnect_window", "10m")

	// Receipt defaults
	v.SetDefault("receipt.paper_width", 32)
	v.SetDefault("receipt.feed_lines", 4)
	v.SetDefault("receipt.cut_mode", "partial")
	v.SetDefault("receipt.currency_prefix", "")

	// Printing defaults
	v.SetDefault("printing.job_timeout", "60s")
	v.SetDefault("printing.auto_print.enabled", false)
	v.SetDefault("printing.auto_print.delay", "3s")
	v.SetDefault("printing.auto_print.require_healthy", true)
	v.SetDefault("printing.auto_print.queue_while_disconnected", false)

	// App defaults
	v.SetDefault("app.name", "printer-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	// Basic validation
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when the database is enabled")
	}

	if err := oneOf("app.environment", config.App.Environment, "development", "staging", "production", "test"); err != nil {
		return err
	}
	if err := oneOf("logging.level", config.Logging.Level, "debug", "info", "warn", "error", "fatal"); err != nil {
		return err
	}
	if err := oneOf("logging.format", config.Logging.Format, "json", "console"); err != nil {
		return err
	}
	if err := oneOf("bluetooth.backend", config.Bluetooth.Backend, BackendBlueZ, BackendGoBLE, BackendRFCOMM); err != nil {
		return err
	}
	if err := oneOf("receipt.cut_mode", config.Receipt.CutMode, "partial", "partial_alt", "full"); err != nil {
		return err
	}
	if config.Receipt.PaperWidth != 32 && config.Receipt.PaperWidth != 48 {
		return fmt.Errorf("receipt.paper_width must be 32 or 48 columns")
	}

	// Validate ranges
	if config.Transport.ChunkSize <= 0 {
		return fmt.Errorf("transport.chunk_size must be positive")
	}
	if config.Transport.PacingDelay < 0 {
		return fmt.Errorf("transport.pacing_delay must not be negative")
	}
	if config.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	if config.Reconnect.Delay < 0 {
		return fmt.Errorf("reconnect.delay must not be negative")
	}
	if config.Bluetooth.ConnectTimeout <= 0 {
		return fmt.Errorf("bluetooth.connect_timeout must be positive")
	}
	if config.Bluetooth.ScanTimeout <= 0 {
		return fmt.Errorf("bluetooth.scan_timeout must be positive")
	}
	if config.KeepAlive.Interval < MinKeepAliveInterval || config.KeepAlive.Interval > MaxKeepAliveInterval {
		return fmt.Errorf("keepalive.interval must be between %s and %s", MinKeepAliveInterval, MaxKeepAliveInterval)
	}
	if config.Printing.AutoPrint.Delay < 0 {
		return fmt.Errorf("printing.auto_print.delay must not be negative")
	}

	return nil
}

func oneOf(key, value string, valid ...string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %v", key, valid)
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
