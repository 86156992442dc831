package providers

import "strings"

// ProviderSpec describes an OpenAI-compatible endpoint.
type ProviderSpec struct {
	Name           string
	Keywords       []string // model-name keywords, lowercase
	EnvKey         string   // env var holding the API key
	DisplayName    string
	DefaultAPIBase string
	DetectByBaseKW string // substring of a base URL that identifies the provider
}

// Label returns a display label.
func (s *ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// Providers is the registry. Order is match priority.
var Providers = []*ProviderSpec{
	{
		Name: "openrouter", Keywords: []string{"openrouter"},
		EnvKey: "OPENROUTER_API_KEY", DisplayName: "OpenRouter",
		DefaultAPIBase: "https://openrouter.ai/api/v1", DetectByBaseKW: "openrouter",
	},
	{
		Name: "deepseek", Keywords: []string{"deepseek"},
		EnvKey: "DEEPSEEK_API_KEY", DisplayName: "DeepSeek",
		DefaultAPIBase: "https://api.deepseek.com/v1", DetectByBaseKW: "deepseek",
	},
	{
		Name: "groq", Keywords: []string{"groq"},
		EnvKey: "GROQ_API_KEY", DisplayName: "Groq",
		DefaultAPIBase: "https://api.groq.com/openai/v1", DetectByBaseKW: "groq",
	},
	{
		Name: "openai", Keywords: []string{"gpt", "o1", "o3", "o4"},
		EnvKey: "OPENAI_API_KEY", DisplayName: "OpenAI",
		DefaultAPIBase: "https://api.openai.com/v1", DetectByBaseKW: "openai.com",
	},
}

// Resolve picks the spec for a base URL, falling back to the model name.
func Resolve(apiBase, model string) *ProviderSpec {
	if apiBase != "" {
		for _, spec := range Providers {
			if spec.DetectByBaseKW != "" && strings.Contains(apiBase, spec.DetectByBaseKW) {
				return spec
			}
		}
		return nil
	}
	return FindByModel(model)
}

// FindByModel returns the provider whose keywords match a model name.
func FindByModel(model string) *ProviderSpec {
	lower := strings.ToLower(model)
	for _, spec := range Providers {
		for _, kw := range spec.Keywords {
			if strings.Contains(lower, kw) {
				return spec
			}
		}
	}
	return nil
}
