package config

// modelPresets maps each provider to its default model.
var modelPresets = map[ProviderType]string{
	ProviderGoogle: "gemini-pro",
	ProviderOpenAI: "gpt-4o-mini",
}

// DefaultConfig returns a Config with sensible defaults. The Feishu app
// credentials have no default and must come from the config file or
// environment.
func DefaultConfig() *Config {
	return &Config{
		Provider:        ProviderGoogle,
		Model:           modelPresets[ProviderGoogle],
		MaxOutputTokens: 100,
		Port:            8080,
		DBPath:          "larkbot.db",
		Feishu: FeishuConfig{
			BaseURL: "https://open.feishu.cn",
		},
	}
}

// DefaultModel returns the default model for the given provider, falling
// back to the Google preset for unknown providers.
func DefaultModel(provider ProviderType) string {
	if m, ok := modelPresets[provider]; ok {
		return m
	}
	return modelPresets[ProviderGoogle]
}
