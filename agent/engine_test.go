package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/llm"
	"github.com/BaSui01/voxflow/testutil/fixtures"
	"github.com/BaSui01/voxflow/testutil/mocks"
)

// echoExecutor 记录收到的调用并返回固定结果。
type echoExecutor struct {
	mu     sync.Mutex
	calls  []llm.ToolCall
	result string
	err    error
}

func (e *echoExecutor) Execute(_ context.Context, call llm.ToolCall) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return e.result, e.err
}

func (e *echoExecutor) Calls() []llm.ToolCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]llm.ToolCall, len(e.calls))
	copy(out, e.calls)
	return out
}

var testTools = []llm.ToolSchema{{
	Name:       "lookup",
	Parameters: json.RawMessage(`{"type":"object"}`),
}}

func drain(ch <-chan OutputItem) []OutputItem {
	var items []OutputItem
	for item := range ch {
		items = append(items, item)
	}
	return items
}

func userMsg(text string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: text}}
}

func TestEngineStreamsSentences(t *testing.T) {
	provider := mocks.NewScriptedProvider(false)
	provider.EnqueueStream(fixtures.TextStream("Hello there.", "How are you?")...)
	e := NewEngine(provider, Config{CharacterName: "Mao"}, nil, nil, zap.NewNop())

	items := drain(e.Chat(context.Background(), userMsg("hi")))
	require.Len(t, items, 2)

	first, ok := items[0].(SentenceItem)
	require.True(t, ok)
	assert.Equal(t, "Hello there.", first.TTSText)
	assert.Equal(t, "Mao", first.Display.Name)

	second := items[1].(SentenceItem)
	assert.Equal(t, "How are you?", second.TTSText)
}

func TestEngineCapabilityDowngradeRetriesOnce(t *testing.T) {
	provider := mocks.NewScriptedProvider(true)
	provider.EnqueueStream(fixtures.ToolsUnsupportedChunk())
	provider.EnqueueStream(fixtures.TextStream("Hi.")...)
	e := NewEngine(provider, Config{Tools: testTools}, nil, nil, zap.NewNop())
	require.True(t, e.SupportsTools())

	items := drain(e.Chat(context.Background(), userMsg("hi")))
	require.Len(t, items, 1)
	assert.Equal(t, "Hi.", items[0].(SentenceItem).TTSText)

	// 首次请求带 tools，降级重试后不带。
	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].Tools)
	assert.Empty(t, calls[1].Tools)
	assert.False(t, e.SupportsTools())
}

func TestEngineDowngradePersistsAcrossTurns(t *testing.T) {
	provider := mocks.NewScriptedProvider(true)
	provider.EnqueueStream(fixtures.ToolsUnsupportedChunk())
	provider.EnqueueStream(fixtures.TextStream("first.")...)
	provider.EnqueueStream(fixtures.TextStream("second.")...)
	e := NewEngine(provider, Config{Tools: testTools}, nil, nil, zap.NewNop())

	drain(e.Chat(context.Background(), userMsg("one")))
	drain(e.Chat(context.Background(), userMsg("two")))

	// 会话内降级单调：第二回合直接不带 tools，不再试探。
	calls := provider.Calls()
	require.Len(t, calls, 3)
	assert.Empty(t, calls[1].Tools)
	assert.Empty(t, calls[2].Tools)
	assert.False(t, e.SupportsTools())
}

func TestEngineToolLoop(t *testing.T) {
	provider := mocks.NewScriptedProvider(true)
	provider.EnqueueStream(fixtures.ToolCallStream("call_1", "lookup", `{"q":`, `"go"}`)...)
	provider.EnqueueStream(fixtures.TextStream("Found it.")...)
	executor := &echoExecutor{result: "result text"}
	e := NewEngine(provider, Config{Tools: testTools}, executor, nil, zap.NewNop())

	items := drain(e.Chat(context.Background(), userMsg("look up go")))
	require.Len(t, items, 3)

	running := items[0].(ToolStatusItem)
	assert.Equal(t, "running", running.Status)
	assert.Equal(t, "lookup", running.ToolName)
	completed := items[1].(ToolStatusItem)
	assert.Equal(t, "completed", completed.Status)
	assert.Equal(t, "Found it.", items[2].(SentenceItem).TTSText)

	// 执行器拿到的是拼接完整的参数。
	calls := executor.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `{"q":"go"}`, string(calls[0].Arguments))

	// 第二次请求回填了助手调用与工具结果。
	reqs := provider.Calls()
	require.Len(t, reqs, 2)
	msgs := reqs[1].Messages
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, llm.RoleAssistant, msgs[len(msgs)-2].Role)
	assert.Equal(t, llm.RoleTool, msgs[len(msgs)-1].Role)
	assert.Equal(t, "result text", msgs[len(msgs)-1].Content)
	assert.Equal(t, "call_1", msgs[len(msgs)-1].ToolCallID)
}

func TestEngineToolCallWithoutExecutor(t *testing.T) {
	provider := mocks.NewScriptedProvider(true)
	provider.EnqueueStream(fixtures.ToolCallStream("call_1", "lookup", `{}`)...)
	e := NewEngine(provider, Config{Tools: testTools}, nil, nil, zap.NewNop())

	items := drain(e.Chat(context.Background(), userMsg("hi")))
	require.Len(t, items, 1)
	status := items[0].(ToolStatusItem)
	assert.Equal(t, "failed", status.Status)
	assert.Contains(t, status.Content, "no tool executor")
}

func TestEngineDegradesOnStreamSetupError(t *testing.T) {
	provider := mocks.NewScriptedProvider(false)
	provider.EnqueueStreamError(&llm.Error{Code: llm.ErrRateLimited, Message: "429"})
	e := NewEngine(provider, Config{}, nil, nil, zap.NewNop())

	items := drain(e.Chat(context.Background(), userMsg("hi")))
	require.Len(t, items, 1)
	// 故障降级成一条可播报的错误句子，而不是中断回合。
	assert.Contains(t, items[0].(SentenceItem).TTSText, "Rate limit exceeded")
}

func TestEngineMidStreamDegrade(t *testing.T) {
	provider := mocks.NewScriptedProvider(false)
	chunks := append(fixtures.TextStream("partial answer"),
		fixtures.ErrorChunk(llm.ErrUpstreamError, "conn reset"))
	provider.EnqueueStream(chunks...)
	e := NewEngine(provider, Config{}, nil, nil, zap.NewNop())

	items := drain(e.Chat(context.Background(), userMsg("hi")))
	require.Len(t, items, 1)
	assert.Equal(t, "partial answer", items[0].(SentenceItem).TTSText)
}

// countRecorder 统计指标上报次数。
type countRecorder struct {
	mu         sync.Mutex
	chunks     int
	downgrades int
}

func (r *countRecorder) RecordStreamChunk(string) {
	r.mu.Lock()
	r.chunks++
	r.mu.Unlock()
}

func (r *countRecorder) RecordToolDowngrade(string) {
	r.mu.Lock()
	r.downgrades++
	r.mu.Unlock()
}

func TestEngineReportsStreamMetrics(t *testing.T) {
	provider := mocks.NewScriptedProvider(true)
	provider.EnqueueStream(fixtures.ToolsUnsupportedChunk())
	provider.EnqueueStream(fixtures.TextStream("Hi.")...)
	rec := &countRecorder{}
	e := NewEngine(provider, Config{Tools: testTools}, nil, rec, zap.NewNop())

	drain(e.Chat(context.Background(), userMsg("hi")))
	drain(e.Chat(context.Background(), userMsg("again")))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	// 哨兵分片 + 重试流 1 个文本分片；第二回合流为空脚本不产分片。
	assert.Equal(t, 2, rec.chunks)
	// 会话内降级只上报一次，后续回合不重复计数。
	assert.Equal(t, 1, rec.downgrades)
}

// stalledProvider 的流在 ctx 取消前不产出任何分片。
type stalledProvider struct {
	started chan struct{}
}

func (p *stalledProvider) Stream(ctx context.Context, _ *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		close(p.started)
		<-ctx.Done()
	}()
	return ch, nil
}

func (p *stalledProvider) Completion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "not implemented"}
}

func (p *stalledProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *stalledProvider) Name() string                        { return "stalled" }
func (p *stalledProvider) SupportsNativeFunctionCalling() bool { return false }

func TestEngineCancellationClosesOutput(t *testing.T) {
	provider := &stalledProvider{started: make(chan struct{})}
	e := NewEngine(provider, Config{}, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	out := e.Chat(ctx, userMsg("hi"))

	<-provider.started
	cancel()

	// 取消后输出通道必须关闭，且不产出任何收尾项。
	done := make(chan []OutputItem, 1)
	go func() { done <- drain(out) }()
	select {
	case items := <-done:
		assert.Empty(t, items)
	case <-time.After(2 * time.Second):
		t.Fatal("output channel not closed after cancellation")
	}
}
