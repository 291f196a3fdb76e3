// Package voxflow provides a top-level convenience entry point for creating
// conversation orchestrators with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/voxflow"
//
//	orch, err := voxflow.New(sink, voxflow.WithOpenAI("gpt-4o-mini"))
//	orch, err := voxflow.New(sink, voxflow.WithProvider(myProvider), voxflow.WithCharacter("Aria"))
//
// The returned orchestrator drives one client session: feed it turns via
// ProcessTurn and receive progress events on the sink. For the full server
// (WebSocket endpoint, speech synthesis, persistent history) use cmd/voxflow.
package voxflow

import (
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/agent"
	"github.com/BaSui01/voxflow/conversation"
	"github.com/BaSui01/voxflow/llm"
	"github.com/BaSui01/voxflow/providers"
	"github.com/BaSui01/voxflow/providers/openai"
)

// Option configures the orchestrator created by [New].
type Option func(*settings)

type settings struct {
	provider llm.Provider
	apiKey   string
	model    string

	character string
	humanName string
	avatar    string
	persona   string

	speaker     conversation.Speaker
	transcriber conversation.Transcriber
	store       conversation.HistoryStore

	logger *zap.Logger
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(s *settings) { s.provider = p }
}

// WithOpenAI selects an OpenAI-compatible chat backend. API key from
// OPENAI_API_KEY env unless overridden via [WithAPIKey].
func WithOpenAI(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithAPIKey overrides the API key for provider shortcuts.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = key }
}

// WithCharacter sets the character name attached to outgoing events.
func WithCharacter(name string) Option {
	return func(s *settings) { s.character = name }
}

// WithHumanName sets the display name for the human side.
func WithHumanName(name string) Option {
	return func(s *settings) { s.humanName = name }
}

// WithAvatar sets the character avatar path.
func WithAvatar(path string) Option {
	return func(s *settings) { s.avatar = path }
}

// WithPersona sets the system prompt injected ahead of every turn.
func WithPersona(prompt string) Option {
	return func(s *settings) { s.persona = prompt }
}

// WithSpeaker attaches a speech synthesizer (see the speech package).
func WithSpeaker(sp conversation.Speaker) Option {
	return func(s *settings) { s.speaker = sp }
}

// WithTranscriber attaches a speech-to-text backend for audio input.
func WithTranscriber(tr conversation.Transcriber) Option {
	return func(s *settings) { s.transcriber = tr }
}

// WithStore attaches a chat history store.
func WithStore(store conversation.HistoryStore) Option {
	return func(s *settings) { s.store = store }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New creates a [conversation.Orchestrator] for a single session.
// A provider must be specified via [WithOpenAI] or [WithProvider].
func New(sink conversation.EventSink, opts ...Option) (*conversation.Orchestrator, error) {
	s := settings{
		character: "Assistant",
		humanName: "Human",
	}
	for _, opt := range opts {
		opt(&s)
	}

	provider := s.provider
	if provider == nil {
		if s.model == "" {
			return nil, errors.New("voxflow: a provider is required, use WithOpenAI or WithProvider")
		}
		key := s.apiKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		provider = openai.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey: key,
			Model:  s.model,
		}, s.logger)
	}

	engine := agent.NewEngine(provider, agent.Config{
		CharacterName: s.character,
		Avatar:        s.avatar,
		SystemPrompt:  s.persona,
		Model:         s.model,
	}, nil, nil, s.logger)

	var tts *conversation.TTSManager
	if s.speaker != nil {
		tts = conversation.NewTTSManager(s.speaker, sink, nil, s.logger)
	}

	return conversation.NewOrchestrator(conversation.Options{
		Engine:        engine,
		TTS:           tts,
		Transcriber:   s.transcriber,
		Store:         s.store,
		Sink:          sink,
		CharacterName: s.character,
		HumanName:     s.humanName,
		Avatar:        s.avatar,
		Logger:        s.logger,
	})
}
