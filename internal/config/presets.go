package config

import (
	"sort"
	"strings"
)

// LLMPreset names a well-known OpenAI-compatible endpoint.
type LLMPreset struct {
	Name    string
	BaseURL string
	Model   string
	// KeyEnv lists provider-specific environment variables consulted for the
	// API key before the generic ones.
	KeyEnv []string
	// SelfHosted presets do not require an API key.
	SelfHosted bool
}

var llmPresets = map[string]LLMPreset{
	"openai":   {Name: "openai", BaseURL: "https://api.openai.com/v1", Model: "gpt-4o", KeyEnv: []string{"OPENAI_API_KEY"}},
	"deepseek": {Name: "deepseek", BaseURL: "https://api.deepseek.com", Model: "deepseek-chat", KeyEnv: []string{"DEEPSEEK_API_KEY"}},
	"qwen":     {Name: "qwen", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", Model: "qwen-max", KeyEnv: []string{"DASHSCOPE_API_KEY"}},
	"moonshot": {Name: "moonshot", BaseURL: "https://api.moonshot.cn/v1", Model: "moonshot-v1-8k", KeyEnv: []string{"MOONSHOT_API_KEY"}},
	"ollama":   {Name: "ollama", BaseURL: "http://localhost:11434/v1", Model: "llama3.2", SelfHosted: true},
}

// LookupLLMPreset returns the preset registered under name.
func LookupLLMPreset(name string) (LLMPreset, bool) {
	preset, ok := llmPresets[strings.ToLower(strings.TrimSpace(name))]
	return preset, ok
}

// LLMPresetNames returns the registered preset names in sorted order.
func LLMPresetNames() []string {
	names := make([]string, 0, len(llmPresets))
	for name := range llmPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
