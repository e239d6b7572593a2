package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/ensemble-chat/ensemble/internal/model"
)

// personaSpec mirrors one entry of the personas file. API keys never live in
// the file itself; each entry names the environment variable holding its key.
type personaSpec struct {
	Name         string `mapstructure:"name"`
	ProviderKind string `mapstructure:"provider_kind"`
	ModelID      string `mapstructure:"model_id"`
	BaseURL      string `mapstructure:"base_url"`
	APIKeyEnv    string `mapstructure:"api_key_env"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// LoadPersonas reads the personas file and resolves API keys from the
// environment. File order is preserved; it determines default response order.
// Structural validation (duplicates, unknown kinds) happens in the registry.
func LoadPersonas(path string) ([]model.Persona, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read personas file %s: %w", path, err)
	}

	var specs []personaSpec
	if err := v.UnmarshalKey("personas", &specs); err != nil {
		return nil, fmt.Errorf("decode personas file %s: %w", path, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("personas file %s defines no personas", path)
	}

	personas := make([]model.Persona, 0, len(specs))
	for _, spec := range specs {
		if spec.APIKeyEnv == "" {
			return nil, fmt.Errorf("persona %q: api_key_env is required", spec.Name)
		}
		key := os.Getenv(spec.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("persona %q: environment variable %s is not set", spec.Name, spec.APIKeyEnv)
		}
		personas = append(personas, model.Persona{
			Name:         spec.Name,
			Kind:         model.ProviderKind(spec.ProviderKind),
			ModelID:      spec.ModelID,
			APIKey:       key,
			BaseURL:      spec.BaseURL,
			SystemPrompt: spec.SystemPrompt,
		})
	}
	return personas, nil
}
