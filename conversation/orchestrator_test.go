package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/agent"
	"github.com/BaSui01/voxflow/llm"
)

// scriptedEngine 按脚本回放输出项，并记录每次收到的消息上下文。
type scriptedEngine struct {
	mu    sync.Mutex
	items []agent.OutputItem
	calls [][]llm.Message
}

func (e *scriptedEngine) Chat(ctx context.Context, msgs []llm.Message) <-chan agent.OutputItem {
	e.mu.Lock()
	snapshot := make([]llm.Message, len(msgs))
	copy(snapshot, msgs)
	e.calls = append(e.calls, snapshot)
	items := e.items
	e.mu.Unlock()

	ch := make(chan agent.OutputItem)
	go func() {
		defer close(ch)
		for _, it := range items {
			select {
			case ch <- it:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (e *scriptedEngine) Calls() [][]llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// hangingEngine 发出开始信号后挂起，直到 ctx 取消才关闭输出通道。
type hangingEngine struct {
	started chan struct{}
}

func (e *hangingEngine) Chat(ctx context.Context, _ []llm.Message) <-chan agent.OutputItem {
	ch := make(chan agent.OutputItem)
	go func() {
		defer close(ch)
		close(e.started)
		<-ctx.Done()
	}()
	return ch
}

type storeEntry struct {
	convID, role, content, name, avatar string
}

type memHistory struct {
	mu      sync.Mutex
	entries []storeEntry
	fail    bool
}

func (s *memHistory) Append(_ context.Context, convID, role, content, name, avatar string) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, storeEntry{convID, role, content, name, avatar})
	return nil
}

func (s *memHistory) Entries() []storeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storeEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return f.text, f.err
}

func newTestOrchestrator(t *testing.T, engine ChatEngine, sink EventSink, store HistoryStore, stt Transcriber) (*Orchestrator, *TTSManager) {
	t.Helper()
	tts := NewTTSManager(newGatedSpeaker(), sink, nil, zap.NewNop())
	o, err := NewOrchestrator(Options{
		Engine:         engine,
		TTS:            tts,
		Transcriber:    stt,
		Store:          store,
		Sink:           sink,
		ConversationID: "conv-1",
		CharacterName:  "Mao",
		HumanName:      "Human",
		Avatar:         "/avatars/mao.png",
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	return o, tts
}

func TestProcessTurnEndToEnd(t *testing.T) {
	engine := &scriptedEngine{items: []agent.OutputItem{
		agent.SentenceItem{TTSText: "Hello[smile]"},
		agent.SentenceItem{TTSText: "friend.I'm good"},
	}}
	sink := &captureSink{}
	store := &memHistory{}
	o, _ := newTestOrchestrator(t, engine, sink, store, nil)

	resp, err := o.ProcessTurn(context.Background(), TurnInput{Text: "hi [wave] there.How are you"})
	require.NoError(t, err)
	assert.Equal(t, "Hello friend. I'm good", resp)

	// 事件序列：开始 → 音频 → 合成完成 → 换新消息 → 结束，结束必须是最后一条。
	types := sink.Types()
	require.Equal(t, []string{
		EventChainStart,
		EventAudio,
		EventSynthComplete,
		EventForceNewMsg,
		EventChainEnd,
	}, types)

	events := sink.Events()
	assert.Equal(t, "Hello friend. I'm good", events[1].Text)
	assert.Equal(t, "Mao", events[1].Name)

	// 人类与 AI 消息都入史，AI 文本为清洗后的精确值。
	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, storeEntry{"conv-1", RoleHuman, "hi [wave] there.How are you", "Human", ""}, entries[0])
	assert.Equal(t, storeEntry{"conv-1", RoleAI, "Hello friend. I'm good", "Mao", "/avatars/mao.png"}, entries[1])
}

func TestProcessTurnEmptyResponse(t *testing.T) {
	engine := &scriptedEngine{}
	sink := &captureSink{}
	store := &memHistory{}
	o, tts := newTestOrchestrator(t, engine, sink, store, nil)

	resp, err := o.ProcessTurn(context.Background(), TurnInput{Text: "hi"})
	require.NoError(t, err)
	assert.Empty(t, resp)

	// 空回复不调度合成，也不发合成完成信号，但回合照常收尾。
	assert.Equal(t, []string{EventChainStart, EventForceNewMsg, EventChainEnd}, sink.Types())
	assert.Equal(t, 0, tts.JobCount())

	entries := store.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, RoleHuman, entries[0].role)
}

func TestProcessTurnForwardsToolStatus(t *testing.T) {
	engine := &scriptedEngine{items: []agent.OutputItem{
		agent.ToolStatusItem{Type: "tool_call_status", ToolID: "call_1", ToolName: "search", Status: "running"},
		agent.ToolStatusItem{Type: "tool_call_status", ToolID: "call_1", ToolName: "search", Status: "completed"},
		agent.SentenceItem{TTSText: "Done."},
	}}
	sink := &captureSink{}
	o, _ := newTestOrchestrator(t, engine, sink, &memHistory{}, nil)

	_, err := o.ProcessTurn(context.Background(), TurnInput{Text: "search it"})
	require.NoError(t, err)

	events := sink.Events()
	require.GreaterOrEqual(t, len(events), 4)
	// 工具状态即时透传，带角色名，先于任何音频事件。
	assert.Equal(t, EventToolCallStatus, events[1].Type)
	assert.Equal(t, "search", events[1].ToolName)
	assert.Equal(t, "running", events[1].Status)
	assert.Equal(t, "Mao", events[1].Name)
	assert.Equal(t, EventToolCallStatus, events[2].Type)
	assert.Equal(t, "completed", events[2].Status)
}

func TestProcessTurnTranscribesAudioInput(t *testing.T) {
	engine := &scriptedEngine{items: []agent.OutputItem{
		agent.SentenceItem{TTSText: "Heard you."},
	}}
	sink := &captureSink{}
	store := &memHistory{}
	stt := &fakeTranscriber{text: "hello voice"}
	o, _ := newTestOrchestrator(t, engine, sink, store, stt)

	_, err := o.ProcessTurn(context.Background(), TurnInput{Audio: []byte{1, 2, 3}})
	require.NoError(t, err)

	types := sink.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, EventChainStart, types[0])
	assert.Contains(t, types, EventTranscription)

	entries := store.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "hello voice", entries[0].content)
}

func TestProcessTurnTranscriptionFailure(t *testing.T) {
	sink := &captureSink{}
	stt := &fakeTranscriber{err: errors.New("asr down")}
	o, _ := newTestOrchestrator(t, &scriptedEngine{}, sink, &memHistory{}, stt)

	_, err := o.ProcessTurn(context.Background(), TurnInput{Audio: []byte{1}})
	require.Error(t, err)

	// 转写失败进 failed，但客户端收到明确的错误事件，不会悬空。
	types := sink.Types()
	assert.Contains(t, types, EventError)
	assert.NotContains(t, types, EventChainEnd)
}

func TestProcessTurnSkipHistory(t *testing.T) {
	engine := &scriptedEngine{items: []agent.OutputItem{
		agent.SentenceItem{TTSText: "ok."},
	}}
	store := &memHistory{}
	o, _ := newTestOrchestrator(t, engine, &captureSink{}, store, nil)

	_, err := o.ProcessTurn(context.Background(), TurnInput{Text: "hi", SkipHistory: true})
	require.NoError(t, err)
	assert.Empty(t, store.Entries())
}

func TestProcessTurnPersistenceFailureDoesNotFailTurn(t *testing.T) {
	engine := &scriptedEngine{items: []agent.OutputItem{
		agent.SentenceItem{TTSText: "still fine."},
	}}
	sink := &captureSink{}
	o, _ := newTestOrchestrator(t, engine, sink, &memHistory{fail: true}, nil)

	resp, err := o.ProcessTurn(context.Background(), TurnInput{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "still fine.", resp)

	types := sink.Types()
	assert.Equal(t, EventChainEnd, types[len(types)-1])
}

func TestProcessTurnCancellation(t *testing.T) {
	engine := &hangingEngine{started: make(chan struct{})}
	sink := &captureSink{}
	o, tts := newTestOrchestrator(t, engine, sink, &memHistory{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := o.ProcessTurn(ctx, TurnInput{Text: "hi"})
		errCh <- err
	}()

	<-engine.started
	cancel()

	select {
	case err := <-errCh:
		// 取消原样上抛，不转成普通错误。
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not propagate cancellation")
	}

	// 取消后不再有收尾事件；清理已执行（任务列表被释放）。
	assert.NotContains(t, sink.Types(), EventChainEnd)
	assert.NotContains(t, sink.Types(), EventForceNewMsg)
	assert.Equal(t, 0, tts.JobCount())
}

func TestProcessTurnRejectsConcurrentTurn(t *testing.T) {
	engine := &hangingEngine{started: make(chan struct{})}
	o, _ := newTestOrchestrator(t, engine, &captureSink{}, &memHistory{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.ProcessTurn(ctx, TurnInput{Text: "first"})
	}()

	<-engine.started
	_, err := o.ProcessTurn(context.Background(), TurnInput{Text: "second"})
	require.ErrorIs(t, err, ErrTurnInFlight)

	cancel()
	<-done
}

func TestProcessTurnCarriesConversationMemory(t *testing.T) {
	engine := &scriptedEngine{items: []agent.OutputItem{
		agent.SentenceItem{TTSText: "answer."},
	}}
	o, _ := newTestOrchestrator(t, engine, &captureSink{}, &memHistory{}, nil)

	_, err := o.ProcessTurn(context.Background(), TurnInput{Text: "first question"})
	require.NoError(t, err)
	_, err = o.ProcessTurn(context.Background(), TurnInput{Text: "second question"})
	require.NoError(t, err)

	calls := engine.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0], 1)
	// 第二回合携带首回合的用户与助手消息。
	require.Len(t, calls[1], 3)
	assert.Equal(t, llm.RoleUser, calls[1][0].Role)
	assert.Equal(t, llm.RoleAssistant, calls[1][1].Role)
	assert.Equal(t, "answer.", calls[1][1].Content)
	assert.Equal(t, "second question", calls[1][2].Content)
}
