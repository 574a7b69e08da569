package providers

import (
	"sirchat/config"
)

// ProviderConfig holds the resolved configuration for one provider.
type ProviderConfig struct {
	Type         string
	APIKey       string
	BaseURL      string
	Organization string
}

// ResolveProviders converts the raw configuration map. Entries without a
// type use their map key as the type.
func ResolveProviders(raw map[string]config.RawProviderConfig) map[string]ProviderConfig {
	result := make(map[string]ProviderConfig, len(raw))
	for name, r := range raw {
		typ := r.Type
		if typ == "" {
			typ = name
		}
		result[name] = ProviderConfig{
			Type:         typ,
			APIKey:       r.APIKey,
			BaseURL:      r.BaseURL,
			Organization: r.Organization,
		}
	}
	return result
}
