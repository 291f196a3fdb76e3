// =============================================================================
// VoxFlow 服务组装
// =============================================================================
// 把配置翻译成运行中的服务：模型引擎工厂、语音后端、历史存储、
// 指标采集与 WebSocket 会话端点。
// =============================================================================

package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/agent"
	"github.com/BaSui01/voxflow/config"
	"github.com/BaSui01/voxflow/conversation"
	"github.com/BaSui01/voxflow/history"
	"github.com/BaSui01/voxflow/internal/metrics"
	"github.com/BaSui01/voxflow/internal/server"
	"github.com/BaSui01/voxflow/providers"
	"github.com/BaSui01/voxflow/providers/openai"
	"github.com/BaSui01/voxflow/speech"
)

// app 持有组装好的服务器与需要随进程关闭的资源。
type app struct {
	manager *server.Manager
	store   history.ChatStore
}

// buildApp 按配置组装整个服务。
func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	// 指标：独立 registry，附带进程与 Go 运行时采集器。
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("voxflow", registry, logger)

	// 模型后端。每个会话一个独立引擎，工具能力降级互不影响。
	provider := openai.NewOpenAIProvider(providers.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	engineCfg := agent.Config{
		CharacterName: cfg.Character.Name,
		Avatar:        cfg.Character.Avatar,
		SystemPrompt:  cfg.Character.Persona,
		Model:         cfg.LLM.Model,
		Temperature:   float32(cfg.LLM.Temperature),
	}
	newEngine := func() conversation.ChatEngine {
		return agent.NewEngine(provider, engineCfg, nil, collector, logger)
	}

	speaker, err := buildSpeaker(cfg, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("build tts: %w", err)
	}

	transcriber := buildTranscriber(cfg)

	store, err := buildHistoryStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build history store: %w", err)
	}

	wsHandler, err := server.NewWSHandler(server.SessionDeps{
		NewEngine:   newEngine,
		Speaker:     speaker,
		Transcriber: transcriber,
		History:     store,
		Character: server.CharacterConfig{
			Name:      cfg.Character.Name,
			HumanName: cfg.Character.HumanName,
			Avatar:    cfg.Character.Avatar,
		},
		Metrics: collector,
		Logger:  logger,
	}, server.WSConfig{
		AuthSecret:      cfg.Server.AuthSecret,
		MessageRate:     cfg.Server.MessageRate,
		MessageBurst:    cfg.Server.MessageBurst,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	}, logger)
	if err != nil {
		return nil, err
	}

	router := server.NewRouter(wsHandler, registry)
	manager := server.NewManager(router, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		MaxHeaderBytes:  cfg.Server.MaxHeaderBytes,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	return &app{manager: manager, store: store}, nil
}

// buildSpeaker 组装 TTS 链路：后端引擎套上内容寻址缓存。
func buildSpeaker(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (conversation.Speaker, error) {
	var (
		provider speech.TTSProvider
		voice    string
	)
	switch cfg.TTS.Engine {
	case "none":
		return nil, nil
	case "openai":
		provider = speech.NewOpenAITTSProvider(speech.OpenAITTSConfig{
			APIKey:  cfg.TTS.OpenAI.APIKey,
			BaseURL: cfg.TTS.OpenAI.BaseURL,
			Model:   cfg.TTS.OpenAI.Model,
			Voice:   cfg.TTS.OpenAI.Voice,
			Timeout: cfg.TTS.OpenAI.Timeout,
		})
		voice = cfg.TTS.OpenAI.Voice
	case "gpt-sovits":
		provider = speech.NewSoVITSProvider(speech.SoVITSConfig{
			APIURL:       cfg.TTS.SoVITS.APIURL,
			RefAudioPath: cfg.TTS.SoVITS.RefAudioPath,
			PromptText:   cfg.TTS.SoVITS.PromptText,
			PromptLang:   cfg.TTS.SoVITS.PromptLang,
			TextLang:     cfg.TTS.SoVITS.TextLang,
			Timeout:      cfg.TTS.SoVITS.Timeout,
		})
		// 参考音频决定音色，一并进缓存键。
		voice = cfg.TTS.SoVITS.RefAudioPath
	default:
		return nil, fmt.Errorf("unknown tts engine: %s", cfg.TTS.Engine)
	}

	return speech.NewCache(provider, speech.CacheConfig{
		Dir:   cfg.TTS.CacheDir,
		Voice: voice,
	}, collector, logger)
}

// buildTranscriber 组装 STT 链路。
func buildTranscriber(cfg *config.Config) conversation.Transcriber {
	if cfg.STT.Engine != "openai" {
		return nil
	}
	provider := speech.NewOpenAISTTProvider(speech.OpenAISTTConfig{
		APIKey:  cfg.STT.OpenAI.APIKey,
		BaseURL: cfg.STT.OpenAI.BaseURL,
		Model:   cfg.STT.OpenAI.Model,
		Timeout: cfg.STT.OpenAI.Timeout,
	})
	return speech.NewDictation(provider, cfg.STT.Language)
}

// buildHistoryStore 按配置选择聊天历史后端。
func buildHistoryStore(cfg *config.Config, logger *zap.Logger) (history.ChatStore, error) {
	switch cfg.History.Backend {
	case "memory":
		return history.NewMemoryStore(), nil
	case "redis":
		store, err := history.NewRedisStore(history.RedisConfig{
			Addr:      cfg.History.Redis.Addr,
			Password:  cfg.History.Redis.Password,
			DB:        cfg.History.Redis.DB,
			KeyPrefix: cfg.History.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("chat history on redis", zap.String("addr", cfg.History.Redis.Addr))
		return store, nil
	case "sqlite":
		store, err := history.NewSQLiteStore(cfg.History.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("chat history on sqlite", zap.String("path", cfg.History.SQLitePath))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history backend: %s", cfg.History.Backend)
	}
}

// close 释放进程级资源。
func (a *app) close(logger *zap.Logger) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("history store close failed", zap.Error(err))
		}
	}
}
