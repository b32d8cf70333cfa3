package mysql

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// TLSMode is one of "disabled", "preferred", "required",
	// "skip-verify". Maps onto the driver's tls parameter.
	TLSMode string

	ConnectTimeout time.Duration
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from a generic decrypted config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:           DefaultPort(),
		TLSMode:        "preferred",
		ConnectTimeout: 10 * time.Second,
	}

	host, ok := config["host"].(string)
	if !ok || host == "" {
		return nil, fmt.Errorf("host is required")
	}
	cfg.Host = host

	// JSON numbers arrive as float64.
	if port, ok := config["port"].(float64); ok {
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if username, ok := config["username"].(string); ok && username != "" {
		cfg.Username = username
	} else if user, ok := config["user"].(string); ok && user != "" {
		cfg.Username = user
	} else {
		return nil, fmt.Errorf("username is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if tlsMode, ok := config["tls_mode"].(string); ok && tlsMode != "" {
		cfg.TLSMode = tlsMode
	}

	if timeout, ok := config["connect_timeout_seconds"].(float64); ok && timeout > 0 {
		cfg.ConnectTimeout = time.Duration(timeout) * time.Second
	}

	return cfg, cfg.Validate()
}

// Validate checks required fields and the TLS mode.
func (c *Config) Validate() error {
	if c.Host == "" || c.Database == "" || c.Username == "" {
		return fmt.Errorf("host, database, and username are required")
	}
	switch c.TLSMode {
	case "disabled", "preferred", "required", "skip-verify":
	default:
		return fmt.Errorf("unsupported tls_mode: %s", c.TLSMode)
	}
	return nil
}

// DSN builds the driver connection string. The result embeds credentials
// and must never be logged unsanitized.
func (c *Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Timeout = c.ConnectTimeout

	switch c.TLSMode {
	case "disabled":
		mc.TLSConfig = "false"
	case "required":
		mc.TLSConfig = "true"
	case "skip-verify":
		mc.TLSConfig = "skip-verify"
	case "preferred":
		mc.TLSConfig = "preferred"
	}

	return mc.FormatDSN()
}
