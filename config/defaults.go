// =============================================================================
// 📦 VoxFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Character: DefaultCharacterConfig(),
		TTS:       DefaultTTSConfig(),
		STT:       DefaultSTTConfig(),
		History:   DefaultHistoryConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0, // WebSocket 长连接不设写超时
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
		MessageRate:     10,
		MessageBurst:    20,
		MaxMessageBytes: 10 << 20,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   4096,
		Timeout:     2 * time.Minute,
	}
}

// DefaultCharacterConfig 返回默认角色配置
func DefaultCharacterConfig() CharacterConfig {
	return CharacterConfig{
		Name:      "Mao",
		HumanName: "Human",
		Avatar:    "",
		Persona:   "You are a friendly voice companion. Keep replies short and conversational.",
	}
}

// DefaultTTSConfig 返回默认 TTS 配置
func DefaultTTSConfig() TTSConfig {
	return TTSConfig{
		Engine:   "openai",
		CacheDir: "cache/audio",
		OpenAI: OpenAITTSConfig{
			BaseURL: "https://api.openai.com",
			Model:   "tts-1-hd",
			Voice:   "alloy",
			Timeout: 60 * time.Second,
		},
		SoVITS: SoVITSConfig{
			APIURL:     "http://127.0.0.1:9880/",
			PromptLang: "en",
			TextLang:   "en",
			Timeout:    120 * time.Second,
		},
	}
}

// DefaultSTTConfig 返回默认 STT 配置
func DefaultSTTConfig() STTConfig {
	return STTConfig{
		Engine: "openai",
		OpenAI: OpenAISTTConfig{
			BaseURL: "https://api.openai.com",
			Model:   "whisper-1",
			Timeout: 120 * time.Second,
		},
	}
}

// DefaultHistoryConfig 返回默认历史存储配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend:    "memory",
		SQLitePath: "voxflow.db",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "voxflow:",
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "voxflow",
		SampleRate:   0.1,
	}
}
