package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NOTEBOOK_SERVER_PORT.
const EnvPrefix = "NOTEBOOK"

// PathEnv names the environment variable holding the config file path.
const PathEnv = "NOTEBOOK_GATEWAY_CONFIG"

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Files       FilesConfig       `mapstructure:"files"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"          validate:"required,gte=1,lte=65535"`
	AdminAPIKey string `mapstructure:"admin_api_key"`
}

type LogConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
}

// CredentialsConfig selects and configures the credential source.
type CredentialsConfig struct {
	Source          string `mapstructure:"source"           validate:"required,oneof=env fs template keychain kv"`
	Template        string `mapstructure:"template"         validate:"required"`
	FSPath          string `mapstructure:"fs_path"`
	BaseURL         string `mapstructure:"base_url"         validate:"required_if=Source template,omitempty,url"`
	SessionID       string `mapstructure:"session_id"       validate:"required_if=Source template"`
	SessionSecret   string `mapstructure:"session_secret"`
	KeychainService string `mapstructure:"keychain_service"`
}

// AuthConfig holds the token lifecycle timings.
type AuthConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
	CacheWindow     time.Duration `mapstructure:"cache_window"     validate:"gt=0"`
	RefreshMargin   time.Duration `mapstructure:"refresh_margin"   validate:"gte=0"`
}

type BackendConfig struct {
	URL            string        `mapstructure:"url"             validate:"required,url"`
	AnonKey        string        `mapstructure:"anon_key"        validate:"required"`
	Bucket         string        `mapstructure:"bucket"          validate:"required"`
	StorageDriver  string        `mapstructure:"storage_driver"  validate:"required,oneof=rest s3"`
	S3Endpoint     string        `mapstructure:"s3_endpoint"     validate:"required_if=StorageDriver s3,omitempty,url"`
	S3Region       string        `mapstructure:"s3_region"`
	ProjectRef     string        `mapstructure:"project_ref"     validate:"required_if=StorageDriver s3"`
	NotesTable     string        `mapstructure:"notes_table"     validate:"required"`
	MessagesTable  string        `mapstructure:"messages_table"  validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

type ChatConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// RetryConfig bounds the retries after the first attempt, per operation class.
type RetryConfig struct {
	Files int `mapstructure:"files" validate:"gte=0,lte=10"`
	Reads int `mapstructure:"reads" validate:"gte=0,lte=10"`
	Chat  int `mapstructure:"chat"  validate:"gte=0,lte=10"`
}

type FilesConfig struct {
	AllowedMIMETypes []string `mapstructure:"allowed_mime_types" validate:"required,min=1"`
	MaxSize          int64    `mapstructure:"max_size"           validate:"gt=0"`
}

var defaults = map[string]interface{}{
	"server.port":                  9879,
	"server.admin_api_key":         "",
	"log.env":                      "development",
	"log.level":                    "info",
	"credentials.source":           "env",
	"credentials.template":         "supabase",
	"credentials.fs_path":          "",
	"credentials.base_url":         "",
	"credentials.session_id":       "",
	"credentials.session_secret":   "",
	"credentials.keychain_service": "notebook-gateway",
	"auth.refresh_interval":        "8m",
	"auth.cache_window":            "5m",
	"auth.refresh_margin":          "2m",
	"backend.url":                  "",
	"backend.anon_key":             "",
	"backend.bucket":               "notebook-files",
	"backend.storage_driver":       "rest",
	"backend.s3_endpoint":          "",
	"backend.s3_region":            "us-east-1",
	"backend.project_ref":          "",
	"backend.notes_table":          "notes",
	"backend.messages_table":       "chat_messages",
	"backend.request_timeout":      "30s",
	"chat.url":                     "",
	"retry.files":                  3,
	"retry.reads":                  2,
	"retry.chat":                   2,
	"files.allowed_mime_types": []string{
		"application/pdf",
		"text/plain",
		"text/markdown",
		"text/csv",
		"image/png",
		"image/jpeg",
		"image/gif",
		"image/webp",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	},
	"files.max_size": 50 << 20,
}

// Load reads the YAML file at path (or the file named by NOTEBOOK_GATEWAY_CONFIG,
// or ./config.yaml when present), applies NOTEBOOK_* environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	vip := newViper()
	vip.AutomaticEnv()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("config")
		vip.AddConfigPath(".")
	}

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return decode(vip)
}

// LoadWithLookup builds a config from defaults and the values lookup returns
// for the NOTEBOOK_* names, without reading a file. The worker build uses it
// with the Workers environment bindings.
func LoadWithLookup(lookup func(string) string) (*Config, error) {
	vip := newViper()
	for _, key := range vip.AllKeys() {
		if v := lookup(EnvName(key)); v != "" {
			vip.Set(key, v)
		}
	}
	return decode(vip)
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func newViper() *viper.Viper {
	vip := viper.New()
	vip.SetConfigType("yaml")
	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for k, v := range defaults {
		vip.SetDefault(k, v)
	}
	return vip
}

func decode(vip *viper.Viper) (*Config, error) {
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
