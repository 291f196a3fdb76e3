package providers

import "time"

// OpenAIConfig OpenAI 兼容端点配置。
// BaseURL 可指向任意兼容 /v1/chat/completions 的服务
// （OpenAI、Ollama、LM Studio、vLLM 等）。
type OpenAIConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Organization string        `json:"organization,omitempty" yaml:"organization,omitempty"`
	Project      string        `json:"project,omitempty" yaml:"project,omitempty"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  float32       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
