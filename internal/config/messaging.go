package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MessagingConfig holds the runtime-tunable messaging policy. It is resolved
// once per request by the services that need it, never read as ambient state.
type MessagingConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	RateLimitSeconds    int  `mapstructure:"rateLimitSeconds"`
	RecallWindowSeconds int  `mapstructure:"recallWindowSeconds"`
	FanoutBacklogSize   int  `mapstructure:"fanoutBacklogSize"`
	ListenerBufferSize  int  `mapstructure:"listenerBufferSize"`
}

func DefaultMessagingConfig() MessagingConfig {
	return MessagingConfig{
		Enabled:             true,
		RateLimitSeconds:    60,
		RecallWindowSeconds: 3600,
		FanoutBacklogSize:   50,
		ListenerBufferSize:  16,
	}
}

func (c MessagingConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitSeconds) * time.Second
}

func (c MessagingConfig) RecallWindow() time.Duration {
	return time.Duration(c.RecallWindowSeconds) * time.Second
}

// MessagingConfigHolder serves the current messaging policy and hot-reloads
// it when the backing file changes.
type MessagingConfigHolder struct {
	current atomic.Value // holds MessagingConfig
}

func NewMessagingConfigHolder() (*MessagingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("messaging")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/inkwell/config")
	v.AddConfigPath("/etc/inkwell")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMessagingConfig()
	v.SetDefault("messaging.enabled", defaults.Enabled)
	v.SetDefault("messaging.rateLimitSeconds", defaults.RateLimitSeconds)
	v.SetDefault("messaging.recallWindowSeconds", defaults.RecallWindowSeconds)
	v.SetDefault("messaging.fanoutBacklogSize", defaults.FanoutBacklogSize)
	v.SetDefault("messaging.listenerBufferSize", defaults.ListenerBufferSize)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg MessagingConfig
	if err := v.UnmarshalKey("messaging", &cfg); err != nil {
		return nil, err
	}
	if err := validateMessagingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &MessagingConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated MessagingConfig
			if err := v.UnmarshalKey("messaging", &updated); err != nil {
				log.Printf("[messaging-config] reload failed: %v", err)
				return
			}
			if err := validateMessagingConfig(updated); err != nil {
				log.Printf("[messaging-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[messaging-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticMessagingConfigHolder wraps a fixed config, for tests.
func NewStaticMessagingConfigHolder(cfg MessagingConfig) *MessagingConfigHolder {
	holder := &MessagingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *MessagingConfigHolder) Get() MessagingConfig {
	return h.current.Load().(MessagingConfig)
}

func validateMessagingConfig(cfg MessagingConfig) error {
	if cfg.RateLimitSeconds <= 0 {
		return errors.New("messaging.rateLimitSeconds must be positive")
	}
	if cfg.RecallWindowSeconds <= 0 {
		return errors.New("messaging.recallWindowSeconds must be positive")
	}
	if cfg.FanoutBacklogSize < 0 || cfg.ListenerBufferSize <= 0 {
		return errors.New("messaging fanout buffer sizes are invalid")
	}
	return nil
}
