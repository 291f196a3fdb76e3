package speech

import "time"

// OpenAITTSConfig 配置 OpenAI TTS 供应商.
type OpenAITTSConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // tts-1, tts-1-hd
	Voice   string        `json:"voice,omitempty" yaml:"voice,omitempty"` // alloy, echo, fable, onyx, nova, shimmer
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAISTTConfig 配置 OpenAI Whisper STT 供应商.
type OpenAISTTConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // whisper-1
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SoVITSConfig 配置 GPT-SoVITS 本地推理服务.
type SoVITSConfig struct {
	APIURL       string        `json:"api_url" yaml:"api_url"`
	RefAudioPath string        `json:"ref_audio_path" yaml:"ref_audio_path"`
	PromptText   string        `json:"prompt_text" yaml:"prompt_text"`
	PromptLang   string        `json:"prompt_lang,omitempty" yaml:"prompt_lang,omitempty"`
	TextLang     string        `json:"text_lang,omitempty" yaml:"text_lang,omitempty"`
	MediaType    string        `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultOpenAITTSConfig 返回默认 OpenAI TTS 配置。
func DefaultOpenAITTSConfig() OpenAITTSConfig {
	return OpenAITTSConfig{
		BaseURL: "https://api.openai.com",
		Model:   "tts-1-hd",
		Voice:   "alloy",
		Timeout: 60 * time.Second,
	}
}

// DefaultOpenAISTTConfig 返回默认 OpenAI STT 配置。
func DefaultOpenAISTTConfig() OpenAISTTConfig {
	return OpenAISTTConfig{
		BaseURL: "https://api.openai.com",
		Model:   "whisper-1",
		Timeout: 120 * time.Second,
	}
}

// DefaultSoVITSConfig 返回默认 GPT-SoVITS 配置。
func DefaultSoVITSConfig() SoVITSConfig {
	return SoVITSConfig{
		APIURL:     "http://127.0.0.1:9880/",
		PromptLang: "en",
		TextLang:   "en",
		MediaType:  "wav",
		Timeout:    120 * time.Second,
	}
}
