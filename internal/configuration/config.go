package configuration

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	MessagesCollection      string `json:"messagesCollection"`
	ConversationsCollection string `json:"conversationsCollection"`
	CallsCollection         string `json:"callsCollection"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type CallConfig struct {
	RingTimeoutSeconds int `json:"ring_timeout_seconds"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Server       ServerConfig `json:"server"`
	Call         CallConfig   `json:"call"`
}

// LoadConfig reads the JSON config file and applies environment overrides.
// A .env file is honored when present; real environment variables win.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvOverrides(&config)
	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		config.ChatDatabase.Uri = uri
	}
	if database := os.Getenv("MONGO_DATABASE"); database != "" {
		config.ChatDatabase.Database = database
	}
	if port, err := strconv.Atoi(os.Getenv("APP_PORT")); err == nil && port > 0 {
		config.Server.AppPort = port
	}
	if port, err := strconv.Atoi(os.Getenv("SOCKET_PORT")); err == nil && port > 0 {
		config.Server.SocketPort = port
	}
	if timeout, err := strconv.Atoi(os.Getenv("CALL_RING_TIMEOUT")); err == nil && timeout > 0 {
		config.Call.RingTimeoutSeconds = timeout
	}
}
