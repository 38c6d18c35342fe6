package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the client and the stub server.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName    string           `mapstructure:"APP_NAME"`
	AppVersion string           `mapstructure:"APP_VERSION"`
	API        APIConfig        `mapstructure:"API"`
	Realtime   RealtimeConfig   `mapstructure:"REALTIME"`
	Upload     UploadConfig     `mapstructure:"UPLOAD"`
	Typing     TypingConfig     `mapstructure:"TYPING"`
	StubServer StubServerConfig `mapstructure:"STUB_SERVER"`
}

// APIConfig holds configuration for the REST collaborators.
type APIConfig struct {
	BaseURL        string        `mapstructure:"BASE_URL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

// RealtimeConfig holds configuration for the websocket transport and the
// reconnect policy. The reconnect delay is flat, not exponential, and the
// attempt count is bounded; after MaxReconnectAttempts the session surfaces
// a terminal failed state instead of retrying silently.
type RealtimeConfig struct {
	SocketURL            string        `mapstructure:"SOCKET_URL"`
	DialTimeout          time.Duration `mapstructure:"DIAL_TIMEOUT"`
	WriteWait            time.Duration `mapstructure:"WRITE_WAIT"`
	PongWait             time.Duration `mapstructure:"PONG_WAIT"`
	PingPeriod           time.Duration `mapstructure:"PING_PERIOD"`
	MaxMessageSizeBytes  int64         `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
	ReconnectDelay       time.Duration `mapstructure:"RECONNECT_DELAY"`
	MaxReconnectAttempts int           `mapstructure:"MAX_RECONNECT_ATTEMPTS"`
}

// UploadConfig holds the client-side validation rules applied before any
// upload request is issued. Image and document limits differ.
type UploadConfig struct {
	AllowedImageTypes    []string `mapstructure:"ALLOWED_IMAGE_TYPES"`
	AllowedDocumentTypes []string `mapstructure:"ALLOWED_DOCUMENT_TYPES"`
	MaxImageSizeMB       int64    `mapstructure:"MAX_IMAGE_SIZE_MB"`
	MaxDocumentSizeMB    int64    `mapstructure:"MAX_DOCUMENT_SIZE_MB"`
}

// TypingConfig holds the typing indicator policy.
type TypingConfig struct {
	// IndicatorExpiry bounds how long a typing indicator may stay lit
	// without a refreshing typing_start, so a lost typing_stop event
	// cannot leave it stuck.
	IndicatorExpiry time.Duration `mapstructure:"INDICATOR_EXPIRY"`
}

// StubServerConfig holds configuration for cmd/stubserver, the local
// development backend.
type StubServerConfig struct {
	Host         string        `mapstructure:"HOST"`
	Port         string        `mapstructure:"PORT"`
	DBPath       string        `mapstructure:"DB_PATH"`
	UploadPath   string        `mapstructure:"UPLOAD_PATH"`
	JWTSecretKey string        `mapstructure:"JWT_SECRET_KEY"`
	JWTExpiry    time.Duration `mapstructure:"JWT_EXPIRY"`
	SeedPassword string        `mapstructure:"SEED_PASSWORD"`
	CORS         CORSConfig    `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS on the stub server.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_NAME", "daymoon-client")
	v.SetDefault("APP_VERSION", "0.1.0")

	// API Defaults
	v.SetDefault("API.BASE_URL", "http://localhost:3000")
	v.SetDefault("API.REQUEST_TIMEOUT", 15*time.Second)

	// Realtime Defaults (reconnect values mirror the production frontend:
	// 5 attempts with a 1s flat delay)
	v.SetDefault("REALTIME.SOCKET_URL", "ws://localhost:3000/chat")
	v.SetDefault("REALTIME.DIAL_TIMEOUT", 10*time.Second)
	v.SetDefault("REALTIME.WRITE_WAIT", 10*time.Second)
	v.SetDefault("REALTIME.PONG_WAIT", 60*time.Second)
	v.SetDefault("REALTIME.PING_PERIOD", 54*time.Second) // (60 * 9) / 10
	v.SetDefault("REALTIME.MAX_MESSAGE_SIZE_BYTES", 64*1024)
	v.SetDefault("REALTIME.RECONNECT_DELAY", 1*time.Second)
	v.SetDefault("REALTIME.MAX_RECONNECT_ATTEMPTS", 5)

	// Upload Defaults
	v.SetDefault("UPLOAD.ALLOWED_IMAGE_TYPES", []string{"image/jpeg", "image/png", "image/gif", "image/webp"})
	v.SetDefault("UPLOAD.ALLOWED_DOCUMENT_TYPES", []string{"application/pdf"})
	v.SetDefault("UPLOAD.MAX_IMAGE_SIZE_MB", 5)
	v.SetDefault("UPLOAD.MAX_DOCUMENT_SIZE_MB", 20)

	// Typing Defaults
	v.SetDefault("TYPING.INDICATOR_EXPIRY", 3*time.Second)

	// StubServer Defaults
	v.SetDefault("STUB_SERVER.HOST", "0.0.0.0")
	v.SetDefault("STUB_SERVER.PORT", "3000")
	v.SetDefault("STUB_SERVER.DB_PATH", "./stubserver.db")
	v.SetDefault("STUB_SERVER.UPLOAD_PATH", "./uploads")
	v.SetDefault("STUB_SERVER.JWT_SECRET_KEY", "dev_only_secret_change_me")
	v.SetDefault("STUB_SERVER.JWT_EXPIRY", 24*time.Hour)
	v.SetDefault("STUB_SERVER.SEED_PASSWORD", "password")
	v.SetDefault("STUB_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:5173"})
	v.SetDefault("STUB_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("STUB_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"})
	v.SetDefault("STUB_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("STUB_SERVER.CORS.MAX_AGE", 300) // 5 minutes

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv() // Read in environment variables that match
	// For nested structs, viper uses underscore: REALTIME_RECONNECT_DELAY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return
		}
		// Config file not found; we have defaults, so this is acceptable
	}

	err = v.Unmarshal(&config)
	return
}
