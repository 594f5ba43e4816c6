package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	CoverPolicyFlat  = "flat"
	CoverPolicyDaily = "daily"
)

// RentPolicy holds the accrual rules that operators may change without a redeploy.
type RentPolicy struct {
	CoverPolicy            string          `mapstructure:"coverPolicy"`
	DefaultAccidentalCover decimal.Decimal `mapstructure:"-"`
	OverpaymentReason      string          `mapstructure:"overpaymentReason"`
}

type rentPolicyFile struct {
	CoverPolicy            string  `mapstructure:"coverPolicy"`
	DefaultAccidentalCover float64 `mapstructure:"defaultAccidentalCover"`
	OverpaymentReason      string  `mapstructure:"overpaymentReason"`
}

func DefaultRentPolicy() RentPolicy {
	return RentPolicy{
		CoverPolicy:            CoverPolicyFlat,
		DefaultAccidentalCover: decimal.NewFromInt(105),
		OverpaymentReason:      "overpayment",
	}
}

type RentPolicyHolder struct {
	current atomic.Value // holds RentPolicy
}

// NewStaticRentPolicyHolder returns a holder that never reloads.
func NewStaticRentPolicyHolder(policy RentPolicy) *RentPolicyHolder {
	holder := &RentPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewRentPolicyHolder() (*RentPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("rent")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fleetrent/config")
	v.AddConfigPath("/etc/fleetrent")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLEETRENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRentPolicy()
	v.SetDefault("rent.coverPolicy", defaults.CoverPolicy)
	v.SetDefault("rent.defaultAccidentalCover", defaults.DefaultAccidentalCover.InexactFloat64())
	v.SetDefault("rent.overpaymentReason", defaults.OverpaymentReason)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	policy, err := readRentPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticRentPolicyHolder(policy)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readRentPolicy(v)
		if err != nil {
			log.Printf("[rent-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[rent-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RentPolicyHolder) Get() RentPolicy {
	if h == nil {
		return DefaultRentPolicy()
	}
	policy, ok := h.current.Load().(RentPolicy)
	if !ok {
		return DefaultRentPolicy()
	}
	return policy
}

func readRentPolicy(v *viper.Viper) (RentPolicy, error) {
	var raw rentPolicyFile
	if err := v.UnmarshalKey("rent", &raw); err != nil {
		return RentPolicy{}, err
	}
	policy := RentPolicy{
		CoverPolicy:            strings.ToLower(strings.TrimSpace(raw.CoverPolicy)),
		DefaultAccidentalCover: decimal.NewFromFloat(raw.DefaultAccidentalCover).Round(2),
		OverpaymentReason:      strings.TrimSpace(raw.OverpaymentReason),
	}
	if err := ValidateRentPolicy(policy); err != nil {
		return RentPolicy{}, err
	}
	return policy, nil
}

func ValidateRentPolicy(policy RentPolicy) error {
	switch policy.CoverPolicy {
	case CoverPolicyFlat, CoverPolicyDaily:
	default:
		return errors.New("rent.coverPolicy must be flat or daily")
	}
	if policy.DefaultAccidentalCover.IsNegative() {
		return errors.New("rent.defaultAccidentalCover cannot be negative")
	}
	if policy.OverpaymentReason == "" {
		return errors.New("rent.overpaymentReason cannot be empty")
	}
	return nil
}
