package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	AI       AIConfig       `yaml:"ai"`
	Images   ImagesConfig   `yaml:"images"`
	Storage  StorageConfig  `yaml:"storage"`
	Channels ChannelsConfig `yaml:"channels"`
	Workflow WorkflowConfig `yaml:"workflow"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AIConfig struct {
	GeminiAPIKey   string        `yaml:"gemini_api_key"`
	GeminiModel    string        `yaml:"gemini_model"`
	OpenAIAPIKey   string        `yaml:"openai_api_key"`
	OpenAIModel    string        `yaml:"openai_model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseTemp       float64       `yaml:"base_temperature"`
	TempStep       float64       `yaml:"temperature_step"`
	MaxTitleLen    int           `yaml:"max_title_length"`
	MaxDescription int           `yaml:"max_description_length"`
	MaxTags        int           `yaml:"max_tags"`
}

type ImagesConfig struct {
	PiapiAPIKey  string        `yaml:"piapi_api_key"`
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
	Enabled      bool          `yaml:"enabled"`
}

type StorageConfig struct {
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	GoogleSheetsID        string `yaml:"google_sheets_id"`
	AirtableAPIKey        string `yaml:"airtable_api_key"`
	AirtableBaseURL       string `yaml:"airtable_base_url"`
	AirtableTable         string `yaml:"airtable_table_name"`
}

type ChannelsConfig struct {
	ConfigFile         string `yaml:"config_file"`
	DefaultName        string `yaml:"default_name"`
	DefaultDescription string `yaml:"default_description"`
	DefaultCreatedBy   string `yaml:"default_created_by"`
}

type WorkflowConfig struct {
	AutoGenerateImages bool          `yaml:"auto_generate_images"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	MaxPackageAge      time.Duration `yaml:"max_package_age"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.AI.GeminiModel == "" {
		c.AI.GeminiModel = "gemini-2.0-flash"
	}
	if c.AI.OpenAIModel == "" {
		c.AI.OpenAIModel = "gpt-4"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 30 * time.Second
	}
	if c.AI.MaxAttempts == 0 {
		c.AI.MaxAttempts = 3
	}
	if c.AI.BaseTemp == 0 {
		c.AI.BaseTemp = 0.9
	}
	if c.AI.TempStep == 0 {
		c.AI.TempStep = 0.05
	}
	if c.AI.MaxTitleLen == 0 {
		c.AI.MaxTitleLen = 100
	}
	if c.AI.MaxDescription == 0 {
		c.AI.MaxDescription = 5000
	}
	if c.AI.MaxTags == 0 {
		c.AI.MaxTags = 15
	}
	if c.Images.BaseURL == "" {
		c.Images.BaseURL = "https://api.piapi.ai"
	}
	if c.Images.PollInterval == 0 {
		c.Images.PollInterval = 5 * time.Second
	}
	if c.Images.MaxPolls == 0 {
		c.Images.MaxPolls = 120
	}
	if c.Storage.AirtableBaseURL == "" {
		c.Storage.AirtableBaseURL = "https://api.airtable.com/v0"
	}
	if c.Storage.AirtableTable == "" {
		c.Storage.AirtableTable = "Content"
	}
	if c.Channels.ConfigFile == "" {
		c.Channels.ConfigFile = "channel_mapping_config.json"
	}
	if c.Channels.DefaultName == "" {
		c.Channels.DefaultName = "Demo Channel"
	}
	if c.Channels.DefaultDescription == "" {
		c.Channels.DefaultDescription = "Demo channel for automated content generation"
	}
	if c.Channels.DefaultCreatedBy == "" {
		c.Channels.DefaultCreatedBy = "Team AI"
	}
	if c.Workflow.CleanupInterval == 0 {
		c.Workflow.CleanupInterval = 1 * time.Hour
	}
	if c.Workflow.MaxPackageAge == 0 {
		c.Workflow.MaxPackageAge = 24 * time.Hour
	}
}
