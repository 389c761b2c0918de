package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMessagePrefix         = "KOMGO.RFP"
	DefaultMessageVersion        = 1
	DefaultNotificationNamespace = "RFP"
)

type MessageConfig struct {
	Prefix  string `koanf:"prefix" mapstructure:"prefix"`
	Version int    `koanf:"version" mapstructure:"version"`
}

type NotificationConfig struct {
	Namespace string `koanf:"namespace" mapstructure:"namespace"`
}

type PublisherConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type ConsumerConfig struct {
	MaxInFlight int `koanf:"max_in_flight" mapstructure:"max_in_flight"`
}

type LockConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName     string             `koanf:"service_name" mapstructure:"service_name"`
	CompanyStaticID string             `koanf:"company_static_id" mapstructure:"company_static_id"`
	Message         MessageConfig      `koanf:"message" mapstructure:"message"`
	Notification    NotificationConfig `koanf:"notification" mapstructure:"notification"`
	Publisher       PublisherConfig    `koanf:"publisher" mapstructure:"publisher"`
	Consumer        ConsumerConfig     `koanf:"consumer" mapstructure:"consumer"`
	Lock            LockConfig         `koanf:"lock" mapstructure:"lock"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "rfp",
		Message: MessageConfig{
			Prefix:  DefaultMessagePrefix,
			Version: DefaultMessageVersion,
		},
		Notification: NotificationConfig{
			Namespace: DefaultNotificationNamespace,
		},
		Publisher: PublisherConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Consumer: ConsumerConfig{
			MaxInFlight: 16,
		},
		Lock: LockConfig{
			TTL: 30 * time.Second,
		},
	}
}

// Validate leaves company_static_id optional so defaults validate; services that
// send or receive check it at construction time.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Message.Prefix) == "" {
		return fmt.Errorf("core: message.prefix is required")
	}
	if strings.HasSuffix(c.Message.Prefix, ".") {
		return fmt.Errorf("core: message.prefix must not end with a dot")
	}
	if c.Message.Version <= 0 {
		return fmt.Errorf("core: message.version must be positive")
	}
	if strings.TrimSpace(c.Notification.Namespace) == "" {
		return fmt.Errorf("core: notification.namespace is required")
	}
	if c.Publisher.MaxAttempts <= 0 {
		return fmt.Errorf("core: publisher.max_attempts must be positive")
	}
	if c.Publisher.InitialBackoff < 0 || c.Publisher.MaxBackoff < 0 {
		return fmt.Errorf("core: publisher backoff must not be negative")
	}
	if c.Publisher.MaxBackoff > 0 && c.Publisher.InitialBackoff > c.Publisher.MaxBackoff {
		return fmt.Errorf("core: publisher.initial_backoff exceeds publisher.max_backoff")
	}
	if c.Consumer.MaxInFlight < 0 {
		return fmt.Errorf("core: consumer.max_in_flight must not be negative")
	}
	if c.Lock.TTL < 0 {
		return fmt.Errorf("core: lock.ttl must not be negative")
	}
	return nil
}

// RequireCompany reports whether the config names the local company identity.
func (c Config) RequireCompany() error {
	if strings.TrimSpace(c.CompanyStaticID) == "" {
		return BadInputError("core: company_static_id is required", nil)
	}
	return nil
}
