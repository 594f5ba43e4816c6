package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/fleetrent/internal/config"
	"github.com/smallbiznis/fleetrent/internal/payment/adapters/phonepe"
	"github.com/smallbiznis/fleetrent/internal/payment/domain"
)

// Registry holds one ready adapter per gateway that has callback
// credentials configured. Callbacks for any other gateway are refused.
type Registry struct {
	adapters map[string]domain.PaymentAdapter
}

// NewRegistry builds the adapter of every factory whose gateway appears in
// credentials. A configured gateway with unusable credentials fails startup.
func NewRegistry(credentials map[string]map[string]any, factories ...domain.AdapterFactory) (*Registry, error) {
	registry := &Registry{adapters: map[string]domain.PaymentAdapter{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		gateway := normalize(factory.Provider())
		if gateway == "" {
			continue
		}
		cfg := credentials[gateway]
		if len(cfg) == 0 {
			continue
		}
		adapter, err := factory.NewAdapter(domain.AdapterConfig{Gateway: gateway, Config: cfg})
		if err != nil {
			return nil, fmt.Errorf("register %s adapter: %w", gateway, err)
		}
		registry.adapters[gateway] = adapter
	}
	return registry, nil
}

// Credentials collects the callback secrets configured per gateway.
func Credentials(cfg config.Config) map[string]map[string]any {
	out := map[string]map[string]any{}
	if cfg.PhonePe.WebhookUsername != "" || cfg.PhonePe.WebhookPassword != "" {
		out[phonepe.Provider] = map[string]any{
			"username":    cfg.PhonePe.WebhookUsername,
			"password":    cfg.PhonePe.WebhookPassword,
			"merchant_id": cfg.PhonePe.MerchantID,
		}
	}
	return out
}

func (r *Registry) Adapter(gateway string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[normalize(gateway)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// Gateways lists the registered gateways in name order.
func (r *Registry) Gateways() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.adapters))
	for gateway := range r.adapters {
		out = append(out, gateway)
	}
	sort.Strings(out)
	return out
}

func normalize(gateway string) string {
	return strings.ToLower(strings.TrimSpace(gateway))
}
