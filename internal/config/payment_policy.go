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

// PaymentPolicy tunes reference generation and ledger locking.
type PaymentPolicy struct {
	ControlNumberPrefix     string        `mapstructure:"control_number_prefix"`
	ProviderReferencePrefix string        `mapstructure:"provider_reference_prefix"`
	TokenMaxAttempts        int           `mapstructure:"token_max_attempts"`
	LockTimeout             time.Duration `mapstructure:"lock_timeout"`
	LockRetryAttempts       int           `mapstructure:"lock_retry_attempts"`
	DueDateHorizonDays      int           `mapstructure:"due_date_horizon_days"`
}

func DefaultPaymentPolicy() PaymentPolicy {
	return PaymentPolicy{
		ControlNumberPrefix:     "TXN",
		ProviderReferencePrefix: "REF",
		TokenMaxAttempts:        5,
		LockTimeout:             3 * time.Second,
		LockRetryAttempts:       3,
		DueDateHorizonDays:      365,
	}
}

type PaymentPolicyHolder struct {
	current atomic.Value // holds PaymentPolicy
}

// NewPaymentPolicyHolder reads payments.yml when present and watches it for changes.
func NewPaymentPolicyHolder() (*PaymentPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("payments")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/munitax")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MUNITAX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPaymentPolicy()
	v.SetDefault("payments.control_number_prefix", defaults.ControlNumberPrefix)
	v.SetDefault("payments.provider_reference_prefix", defaults.ProviderReferencePrefix)
	v.SetDefault("payments.token_max_attempts", defaults.TokenMaxAttempts)
	v.SetDefault("payments.lock_timeout", defaults.LockTimeout)
	v.SetDefault("payments.lock_retry_attempts", defaults.LockRetryAttempts)
	v.SetDefault("payments.due_date_horizon_days", defaults.DueDateHorizonDays)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var policy PaymentPolicy
	if err := v.UnmarshalKey("payments", &policy); err != nil {
		return nil, err
	}
	if err := ValidatePaymentPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPaymentPolicy(policy)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PaymentPolicy
			if err := v.UnmarshalKey("payments", &updated); err != nil {
				log.Printf("[payment-policy] reload failed: %v", err)
				return
			}
			if err := ValidatePaymentPolicy(updated); err != nil {
				log.Printf("[payment-policy] invalid policy ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[payment-policy] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// NewStaticPaymentPolicy wraps a fixed policy, mainly for tests and tools.
func NewStaticPaymentPolicy(policy PaymentPolicy) *PaymentPolicyHolder {
	holder := &PaymentPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PaymentPolicyHolder) Get() PaymentPolicy {
	if h == nil {
		return DefaultPaymentPolicy()
	}
	return h.current.Load().(PaymentPolicy)
}

func ValidatePaymentPolicy(p PaymentPolicy) error {
	if strings.TrimSpace(p.ControlNumberPrefix) == "" {
		return errors.New("payments.control_number_prefix cannot be empty")
	}
	if p.TokenMaxAttempts < 1 {
		return errors.New("payments.token_max_attempts must be at least 1")
	}
	if p.LockTimeout <= 0 {
		return errors.New("payments.lock_timeout must be positive")
	}
	if p.LockRetryAttempts < 1 {
		return errors.New("payments.lock_retry_attempts must be at least 1")
	}
	if p.DueDateHorizonDays < 1 {
		return errors.New("payments.due_date_horizon_days must be at least 1")
	}
	return nil
}
