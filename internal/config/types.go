package config

// ProviderType identifies a generative-language provider.
type ProviderType string

const (
	ProviderGoogle ProviderType = "google"
	ProviderOpenAI ProviderType = "openai"
)

// Config is the top-level larkbot configuration, corresponding to .larkbot.yml.
type Config struct {
	Provider        ProviderType `yaml:"provider" koanf:"provider"`
	Model           string       `yaml:"model" koanf:"model"`
	MaxOutputTokens int          `yaml:"max_output_tokens" koanf:"max_output_tokens"`
	Port            int          `yaml:"port" koanf:"port"`
	DBPath          string       `yaml:"db_path" koanf:"db_path"`
	Feishu          FeishuConfig `yaml:"feishu" koanf:"feishu"`
}

// FeishuConfig holds the platform app credentials and endpoint.
type FeishuConfig struct {
	AppID     string `yaml:"app_id" koanf:"app_id"`
	AppSecret string `yaml:"app_secret" koanf:"app_secret"`
	BaseURL   string `yaml:"base_url" koanf:"base_url"`
}
