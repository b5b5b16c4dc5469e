package config

import (
	"encoding/json"
	"errors"
	"os"
)

const EnvConfigPath = "COLLAB_CONFIG"

type ServerConfig struct {
	Port              int      `json:"port"`
	ReadTimeout       string   `json:"read_timeout"`
	WriteTimeout      string   `json:"write_timeout"`
	OutboundQueueSize int      `json:"outbound_queue_size"`
	AccessCacheSize   int      `json:"access_cache_size"`
	AccessCacheTTL    string   `json:"access_cache_ttl"`
	AllowedOrigins    []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	InMemory           bool   `json:"in_memory"`
	Host               string `json:"host"`
	Port               uint64 `json:"port"`
	Username           string `json:"username"`
	Password           string `json:"password"`
	Database           string `json:"database"`
	UseTLS             bool   `json:"use_tls"`
	ConnectTimeout     string `json:"connect_timeout"`
	SocketTimeout      string `json:"socket_timeout"`
	ConnectIdleTimeout string `json:"connect_idle_timeout"`
	OperationTimeout   string `json:"operation_timeout"`
	Heartbeat          string `json:"heartbeat"`
	MinPoolSize        uint64 `json:"min_pool_size"`
	MaxPoolSize        uint64 `json:"max_pool_size"`
}

type Config struct {
	Server    ServerConfig   `json:"server"`
	Database  DatabaseConfig `json:"database"`
	DebugMode bool           `json:"debug_mode"`
	AppName   string         `json:"app_name"`
}

var config Config
var initialized = false

func configPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return "config.json"
}

func ReadConfig() (Config, error) {
	return ReadConfigFile(configPath())
}

// ReadConfigFile loads the configuration from the given path. When the file
// does not exist a template is written so the operator can edit it.
func ReadConfigFile(path string) (Config, error) {
	bytes, err := os.ReadFile(path)

	if err != nil {
		writer, _ := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
		data, _ := json.MarshalIndent(defaults(), "", "\t")
		_, _ = writer.Write(data)
		_ = writer.Close()
		return config, errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
	}

	err = json.Unmarshal(bytes, &config)

	if err != nil {
		return config, errors.New("the configuration file does not contain valid JSON")
	}

	normalize(&config)
	initialized = true
	return config, nil
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig()
}

func defaults() Config {
	var c Config
	normalize(&c)
	return c
}

func normalize(c *Config) {
	if c.AppName == "" {
		c.AppName = "collab-relay"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.OutboundQueueSize == 0 {
		c.Server.OutboundQueueSize = 64
	}
	if c.Server.AccessCacheSize == 0 {
		c.Server.AccessCacheSize = 256
	}
	if c.Server.AccessCacheTTL == "" {
		c.Server.AccessCacheTTL = "1m"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "10s"
	}
	if c.Database.OperationTimeout == "" {
		c.Database.OperationTimeout = "5s"
	}
	if c.Database.ConnectTimeout == "" {
		c.Database.ConnectTimeout = "10s"
	}
	if c.Database.SocketTimeout == "" {
		c.Database.SocketTimeout = "10s"
	}
	if c.Database.ConnectIdleTimeout == "" {
		c.Database.ConnectIdleTimeout = "5m"
	}
	if c.Database.Heartbeat == "" {
		c.Database.Heartbeat = "10s"
	}
	if c.Database.MaxPoolSize == 0 {
		c.Database.MaxPoolSize = 16
	}
}
