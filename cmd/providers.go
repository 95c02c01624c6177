package cmd

import (
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/promptsense/promptsense/internal/provider"
)

// newProviderClient builds one provider client from config/env. API keys
// come from config first, then the provider's conventional env var.
func newProviderClient(name string) (provider.Client, error) {
	timeout := runTimeout()

	switch name {
	case "openai":
		return provider.New(name, provider.Config{
			APIKey:  keyFrom("openai.api_key", "OPENAI_API_KEY"),
			BaseURL: viper.GetString("openai.base_url"),
			Model:   viper.GetString("openai.model"),
			Timeout: timeout,
		})
	case "huggingface":
		return provider.New(name, provider.Config{
			APIKey:  keyFrom("huggingface.api_key", "HF_API_TOKEN"),
			BaseURL: viper.GetString("huggingface.base_url"),
			Model:   viper.GetString("huggingface.model"),
			Timeout: timeout,
		})
	case "anthropic":
		return provider.New(name, provider.Config{
			APIKey:  keyFrom("anthropic.api_key", "ANTHROPIC_API_KEY"),
			Model:   viper.GetString("anthropic.model"),
			Timeout: timeout,
		})
	default:
		return provider.New(name, provider.Config{Timeout: timeout})
	}
}

func keyFrom(configKey, envVar string) string {
	if key := viper.GetString(configKey); key != "" {
		return key
	}
	return os.Getenv(envVar)
}

// runTimeout parses run.timeout, tolerating a bare number of seconds.
func runTimeout() time.Duration {
	if d := viper.GetDuration("run.timeout"); d > 0 {
		return d
	}
	if n := viper.GetInt("run.timeout"); n > 0 {
		return time.Duration(n) * time.Second
	}
	return 60 * time.Second
}
