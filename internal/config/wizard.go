package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .larkbot.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to larkbot! Let's configure your bridge.")
	fmt.Println()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"google", "openai"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)

	// 2. Model.
	modelPrompt := promptui.Prompt{
		Label:   "Model",
		Default: DefaultModel(provider),
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	// 3. Reply length cap.
	tokensPrompt := promptui.Prompt{
		Label:   "Max output tokens per reply",
		Default: "100",
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fmt.Errorf("must be a positive integer")
			}
			return nil
		},
	}
	tokensStr, err := tokensPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("max output tokens: %w", err)
	}
	maxTokens, _ := strconv.Atoi(tokensStr)

	// 4. Feishu app credentials.
	appIDPrompt := promptui.Prompt{
		Label: "Feishu app id",
	}
	appID, err := appIDPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("app id: %w", err)
	}

	appSecretPrompt := promptui.Prompt{
		Label: "Feishu app secret",
		Mask:  '*',
	}
	appSecret, err := appSecretPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("app secret: %w", err)
	}

	// 5. Listen port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: "8080",
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("must be a valid port")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	port, _ := strconv.Atoi(portStr)

	// 6. Database path.
	dbPrompt := promptui.Prompt{
		Label:   "SQLite database path",
		Default: "larkbot.db",
	}
	dbPath, err := dbPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("db path: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = model
	cfg.MaxOutputTokens = maxTokens
	cfg.Port = port
	cfg.DBPath = dbPath
	cfg.Feishu.AppID = appID
	cfg.Feishu.AppSecret = appSecret

	// Check for API key.
	if envVar := APIKeyEnvVar(provider); envVar != "" {
		if os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment before running larkbot serve.\n", envVar)
		}
	}

	configPath := ".larkbot.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}
