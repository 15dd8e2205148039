package configs

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	mu sync.RWMutex

	Server struct {
		Port     string
		Env      string
		LogLevel string
	}
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	WebSocket struct {
		PingInterval   string
		MaxMessageSize int
	}
	Auth struct {
		SecretKey string
	}
	Auction struct {
		// Auto-extend settings are process-wide, not per auction, and are
		// hot-reloaded when the config file changes.
		AutoExtendTriggerMinutes  int
		AutoExtendDurationMinutes int
		SweepIntervalSeconds      int
		NotifyWorkers             int
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file
	if err := godotenv.Load("./configs/.env"); err != nil {
		log.Info("No .env file found")
	}

	viper.SetConfigName("config")    // Name of the config file (without extension)
	viper.SetConfigType("yaml")      // Config file type
	viper.AddConfigPath("./configs") // Path to look for the config file
	viper.AutomaticEnv()             // Automatically map environment variables

	// Allow dots in environment variables to map to nested keys
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	substituteEnvVarsInConfig()

	config := &Config{}
	if err := config.reload(); err != nil {
		return nil, err
	}

	// Re-read auction settings whenever the config file changes so the
	// auto-extend window can be tuned without a restart.
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Config file changed, reloading", "file", e.Name)
		if err := config.reload(); err != nil {
			log.Error("Failed to reload config: ", err)
		}
	})
	viper.WatchConfig()

	return config, nil
}

func (c *Config) reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return viper.Unmarshal(c)
}

// AutoExtendSettings returns the current trigger window and extension
// duration. Safe to call concurrently with a config reload.
func (c *Config) AutoExtendSettings() (trigger, extend time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Auction.AutoExtendTriggerMinutes) * time.Minute,
		time.Duration(c.Auction.AutoExtendDurationMinutes) * time.Minute
}

// SweepInterval returns how often the close resolver scans for expired
// auctions, defaulting to 30 seconds.
func (c *Config) SweepInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Auction.SweepIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Auction.SweepIntervalSeconds) * time.Second
}

// Helper function to manually replace environment variables in config file values
func substituteEnvVarsInConfig() {
	for _, key := range viper.AllKeys() {
		value := viper.GetString(key)

		// Check if the value contains environment variable syntax (e.g., ${PORT})
		if strings.Contains(value, "${") {
			replacedValue := os.Expand(value, func(name string) string {
				return os.Getenv(name)
			})
			viper.Set(key, replacedValue)
		}
	}
}
