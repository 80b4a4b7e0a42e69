package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabasePath         string          `yaml:"databasePath" json:"databasePath"`
	BusyTimeout          time.Duration   `yaml:"busyTimeout" json:"busyTimeout"`
	ListenAddr           string          `yaml:"listenAddr" json:"listenAddr"`
	LogLevel             string          `yaml:"logLevel" json:"logLevel"`
	CountryCode          string          `yaml:"countryCode" json:"countryCode"`
	NameLocale           string          `yaml:"nameLocale" json:"nameLocale"`
	PickupDiscount       decimal.Decimal `yaml:"pickupDiscount" json:"pickupDiscount"`
	MaxNoteLength        int             `yaml:"maxNoteLength" json:"maxNoteLength"`
	AtomicCustomerUpsert bool            `yaml:"atomicCustomerUpsert" json:"atomicCustomerUpsert"`
	RecipeCSVPath        string          `yaml:"recipeCsvPath" json:"recipeCsvPath"`
	RecipeCSVEncoding    string          `yaml:"recipeCsvEncoding" json:"recipeCsvEncoding"`
	UnitsCSVPath         string          `yaml:"unitsCsvPath" json:"unitsCsvPath"`
	AMQP                 AMQPConfig      `yaml:"amqp" json:"amqp"`
}

// AMQPConfig configures order event publishing. An empty URL disables it.
type AMQPConfig struct {
	URL      string `yaml:"url" json:"url"`
	Exchange string `yaml:"exchange" json:"exchange"`
}

var (
	cfg Config
	mu  sync.RWMutex
)

var configFilePath = "./orderdesk.yaml"

func init() {
	if p := os.Getenv("ORDERDESK_CONFIG"); p != "" {
		configFilePath = p
	}
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	return Config{
		DatabasePath:      "./orderdesk.db",
		BusyTimeout:       20 * time.Second,
		ListenAddr:        "127.0.0.1:8080",
		LogLevel:          "info",
		CountryCode:       "32",
		NameLocale:        "nl",
		PickupDiscount:    decimal.NewFromInt(10),
		MaxNoteLength:     250,
		RecipeCSVEncoding: "windows-1252",
		AMQP:              AMQPConfig{Exchange: "orders_topic"},
	}
}

// LoadConfig reads the config file. A missing file yields Defaults().
func LoadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	loaded := Defaults()
	file, err := os.ReadFile(configFilePath)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", configFilePath, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(file, &loaded); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", configFilePath, err)
		}
	}
	applyEnv(&loaded)
	fillDefaults(&loaded)
	cfg = loaded
	return cfg, nil
}

func SaveConfig(newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	fillDefaults(&newCfg)
	file, err := yaml.Marshal(newCfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configFilePath, file, 0644); err != nil {
		return err
	}
	cfg = newCfg
	return nil
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

func applyEnv(c *Config) {
	if v := os.Getenv("ORDERDESK_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("ORDERDESK_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ORDERDESK_AMQP_URL"); v != "" {
		c.AMQP.URL = v
	}
}

func fillDefaults(c *Config) {
	d := Defaults()
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = d.BusyTimeout
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.CountryCode == "" {
		c.CountryCode = d.CountryCode
	}
	if c.NameLocale == "" {
		c.NameLocale = d.NameLocale
	}
	if c.MaxNoteLength <= 0 {
		c.MaxNoteLength = d.MaxNoteLength
	}
	if c.RecipeCSVEncoding == "" {
		c.RecipeCSVEncoding = d.RecipeCSVEncoding
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = d.AMQP.Exchange
	}
}

// Validate checks values a terminal operator can get wrong.
func (c Config) Validate() error {
	if c.PickupDiscount.IsNegative() || c.PickupDiscount.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("pickupDiscount must be between 0 and 100, got %s", c.PickupDiscount)
	}
	for _, r := range c.CountryCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("countryCode must be digits only, got %q", c.CountryCode)
		}
	}
	if len(c.CountryCode) > 3 {
		return fmt.Errorf("countryCode is at most 3 digits, got %q", c.CountryCode)
	}
	return nil
}
