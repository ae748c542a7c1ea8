package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	yaml "go.yaml.in/yaml/v3"
)

// Config holds runtime configuration values.
type Config struct {
	Port     string
	DBPath   string
	Env      string
	Title    string
	Subtitle string

	AdminTokenHash string // bcrypt hash; empty disables admin endpoints

	AMIEnabled       bool
	AMIHost          string
	AMIPort          int
	AMIUser          string
	AMIPassword      string
	AMIEvents        string
	AMIRetryInterval time.Duration
	AMIRetryMax      time.Duration

	TrunkAccountCodeLength int

	CallLogMax int
	CallLogTTL time.Duration

	WSHeartbeatInterval time.Duration
}

// Load loads configuration from config file and environment variables using
// Viper. Optionally accepts a config file path as first argument.
func Load(configPath ...string) Config {
	viper.SetDefault("port", "8080")
	viper.SetDefault("db_path", "data/amichand.db")
	viper.SetDefault("app_env", "development")
	viper.SetDefault("title", "amichand")
	viper.SetDefault("subtitle", "")
	viper.SetDefault("admin_token_hash", "")

	viper.SetDefault("ami_enabled", true)
	viper.SetDefault("ami_host", "127.0.0.1")
	viper.SetDefault("ami_port", 5038)
	viper.SetDefault("ami_username", "admin")
	viper.SetDefault("ami_password", "change-me")
	viper.SetDefault("ami_events", "on")
	viper.SetDefault("ami_retry_interval", "15s")
	viper.SetDefault("ami_retry_max", "60s")

	viper.SetDefault("trunk_account_code_length", 9)

	viper.SetDefault("call_log_max", 500)
	viper.SetDefault("call_log_ttl", "24h")

	viper.SetDefault("ws_heartbeat_interval", "30s")

	if len(configPath) > 0 && configPath[0] != "" {
		viper.SetConfigFile(configPath[0])
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("data")
		viper.AddConfigPath("$HOME/.amichand")
		viper.AddConfigPath("/etc/amichand")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("No config file found, using defaults and environment variables")
		} else {
			log.Printf("Error reading config file: %v", err)
		}
	} else {
		log.Printf("Using config file: %s", viper.ConfigFileUsed())
	}

	viper.SetEnvPrefix("")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := Config{
		Port:                   viper.GetString("port"),
		DBPath:                 viper.GetString("db_path"),
		Env:                    viper.GetString("app_env"),
		Title:                  viper.GetString("title"),
		Subtitle:               viper.GetString("subtitle"),
		AdminTokenHash:         viper.GetString("admin_token_hash"),
		AMIEnabled:             viper.GetBool("ami_enabled"),
		AMIHost:                viper.GetString("ami_host"),
		AMIPort:                viper.GetInt("ami_port"),
		AMIUser:                viper.GetString("ami_username"),
		AMIPassword:            viper.GetString("ami_password"),
		AMIEvents:              viper.GetString("ami_events"),
		AMIRetryInterval:       viper.GetDuration("ami_retry_interval"),
		AMIRetryMax:            viper.GetDuration("ami_retry_max"),
		TrunkAccountCodeLength: viper.GetInt("trunk_account_code_length"),
		CallLogMax:             viper.GetInt("call_log_max"),
		CallLogTTL:             viper.GetDuration("call_log_ttl"),
		WSHeartbeatInterval:    viper.GetDuration("ws_heartbeat_interval"),
	}

	if err := os.MkdirAll(dirOf(cfg.DBPath), 0o755); err != nil {
		log.Printf("warning: unable to create data dir: %v", err)
	}

	if cfg.AdminTokenHash == "" {
		log.Printf("WARNING: no admin_token_hash configured - admin endpoints are disabled")
	}

	return cfg
}

// Validate performs a best-effort sanity check of a config file before it
// is trusted: a missing file, tab-indented YAML (invalid per the YAML spec
// but a common copy-paste mistake), or a structurally malformed ami_port
// field are all rejected here rather than surfacing as a confusing Load
// default-fallback later.
func Validate(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	for i, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, "\t") {
			return fmt.Errorf("line %d: YAML does not allow tab indentation", i+1)
		}
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := raw["ami_port"]; ok {
		switch v.(type) {
		case int, float64:
		default:
			return fmt.Errorf("ami_port must be a number, got %T", v)
		}
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// SaveExampleConfig creates an example config.yaml file.
func SaveExampleConfig(path string) error {
	exampleConfig := `# amichand configuration file
# This file uses YAML format
# Environment variables will override these values

# Server
port: 8080
app_env: production

# Database
db_path: data/amichand.db

# Admin endpoint gate (bcrypt hash as produced by
# internal/adminauth.HashToken); leave blank to disable admin endpoints
admin_token_hash: ""

# AMI connection
ami_enabled: true
ami_host: 127.0.0.1
ami_port: 5038
ami_username: admin
ami_password: change-me
ami_events: "on"
ami_retry_interval: 15s
ami_retry_max: 60s

# Width of the trunk account code embedded in outbound channel names
# (SIP/<code>-...), used to recognize outbound trunk legs (whose nominal
# CLI is replaced by the dialed extension) and to derive the account code.
trunk_account_code_length: 9

# In-memory recent-call ring buffer
call_log_max: 500
call_log_ttl: 24h

ws_heartbeat_interval: 30s
`
	return os.WriteFile(path, []byte(exampleConfig), 0644)
}
