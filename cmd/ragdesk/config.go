package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MegaGrindStone/ragdesk/internal/controller"
	"github.com/MegaGrindStone/ragdesk/internal/models"
	"github.com/MegaGrindStone/ragdesk/internal/services"
	"gopkg.in/yaml.v3"
)

// modelSourceConfig resolves where the model list comes from. A nil lister means the RAG server itself.
type modelSourceConfig interface {
	lister() (controller.ModelLister, error)
}

// BaseModelSourceConfig contains the common fields for all model source configurations.
type BaseModelSourceConfig struct {
	Source string `yaml:"source"`
}

type config struct {
	ServerURL     string            `yaml:"serverURL"`
	ServerTimeout time.Duration     `yaml:"serverTimeout"`
	Port          string            `yaml:"port"`
	Model         string            `yaml:"model"`
	Mode          models.Mode       `yaml:"mode"`
	VectorStore   string            `yaml:"vectorStore"`
	Models        modelSourceConfig `yaml:"models"`
	Log           logConfig         `yaml:"log"`
}

type logConfig struct {
	Level string `yaml:"level"`
	// File enables a rotating log file next to the console output.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type serverSourceConfig struct {
	BaseModelSourceConfig `yaml:",inline"`
}

type ollamaSourceConfig struct {
	BaseModelSourceConfig `yaml:",inline"`
	Host                  string `yaml:"host"`
}

type openaiSourceConfig struct {
	BaseModelSourceConfig `yaml:",inline"`
	APIKey                string `yaml:"apiKey"`
	BaseURL               string `yaml:"baseURL"`
}

func defaultConfig() config {
	return config{
		ServerURL:     "http://localhost:5000",
		ServerTimeout: 60 * time.Second,
		Port:          "8080",
		Mode:          models.ModePDF,
		Models:        &serverSourceConfig{BaseModelSourceConfig{Source: "server"}},
		Log: logConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// loadConfig reads the config file at path over the defaults. A missing file yields the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		ServerURL     string         `yaml:"serverURL"`
		ServerTimeout time.Duration  `yaml:"serverTimeout"`
		Port          string         `yaml:"port"`
		Model         string         `yaml:"model"`
		Mode          string         `yaml:"mode"`
		VectorStore   string         `yaml:"vectorStore"`
		Models        map[string]any `yaml:"models"`
		Log           *logConfig     `yaml:"log"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.ServerURL != "" {
		c.ServerURL = rawConfig.ServerURL
	}
	if rawConfig.ServerTimeout != 0 {
		c.ServerTimeout = rawConfig.ServerTimeout
	}
	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.Mode != "" {
		mode, err := models.ParseMode(rawConfig.Mode)
		if err != nil {
			return err
		}
		c.Mode = mode
	}
	if rawConfig.Log != nil {
		c.Log = *rawConfig.Log
	}
	c.Model = rawConfig.Model
	c.VectorStore = rawConfig.VectorStore

	if len(rawConfig.Models) == 0 {
		return nil
	}

	source, ok := rawConfig.Models["source"].(string)
	if !ok {
		return fmt.Errorf("models source is required")
	}

	sourceRawYAML, err := yaml.Marshal(rawConfig.Models)
	if err != nil {
		return err
	}

	var src modelSourceConfig
	switch source {
	case "server":
		src = &serverSourceConfig{}
	case "ollama":
		src = &ollamaSourceConfig{}
	case "openai":
		src = &openaiSourceConfig{}
	default:
		return fmt.Errorf("unknown models source: %s", source)
	}

	if err := yaml.Unmarshal(sourceRawYAML, src); err != nil {
		return err
	}

	c.Models = src

	return nil
}

func (c config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("serverURL is required")
	}
	if c.ServerTimeout < 0 {
		return fmt.Errorf("serverTimeout must not be negative")
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid mode: %q", c.Mode)
	}
	return nil
}

func (serverSourceConfig) lister() (controller.ModelLister, error) {
	return nil, nil
}

func (o ollamaSourceConfig) lister() (controller.ModelLister, error) {
	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host)
}

func (o openaiSourceConfig) lister() (controller.ModelLister, error) {
	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai apiKey is required")
	}
	return services.NewOpenAI(apiKey, o.BaseURL), nil
}
