package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/agent"
	"github.com/BaSui01/voxflow/conversation"
	"github.com/BaSui01/voxflow/history"
	"github.com/BaSui01/voxflow/llm"
	"github.com/BaSui01/voxflow/testutil"
)

// --- stubs ---

// textEngine 每次调用输出同一句话。
type textEngine struct {
	sentence string
}

func (e *textEngine) Chat(_ context.Context, _ []llm.Message) <-chan agent.OutputItem {
	out := make(chan agent.OutputItem, 1)
	out <- agent.SentenceItem{TTSText: e.sentence}
	close(out)
	return out
}

// switchEngine 第一次调用阻塞到取消为止，之后的调用正常输出。
// 用来验证打断会释放回合槽位。
type switchEngine struct {
	first    atomic.Bool
	started  chan struct{}
	sentence string
}

func newSwitchEngine(sentence string) *switchEngine {
	e := &switchEngine{started: make(chan struct{}), sentence: sentence}
	e.first.Store(true)
	return e
}

func (e *switchEngine) Chat(ctx context.Context, _ []llm.Message) <-chan agent.OutputItem {
	out := make(chan agent.OutputItem, 1)
	if e.first.CompareAndSwap(true, false) {
		go func() {
			close(e.started)
			<-ctx.Done()
			close(out)
		}()
		return out
	}
	out <- agent.SentenceItem{TTSText: e.sentence}
	close(out)
	return out
}

// pathSpeaker 不做真实合成，返回预先写好的音频工件路径。
type pathSpeaker struct {
	path string
}

func newPathSpeaker(t *testing.T) pathSpeaker {
	return pathSpeaker{path: testutil.TempAudioFile(t, []byte("RIFFstub"))}
}

func (pathSpeaker) Name() string { return "stub" }

func (s pathSpeaker) Synthesize(_ context.Context, _ string) (string, error) {
	return s.path, nil
}

// --- helpers ---

// sameEngine 让每个会话都拿到同一个测试引擎。
func sameEngine(e conversation.ChatEngine) func() conversation.ChatEngine {
	return func() conversation.ChatEngine { return e }
}

func newWSServer(t *testing.T, deps SessionDeps, cfg WSConfig) string {
	t.Helper()
	h, err := NewWSHandler(deps, cfg, zap.NewNop())
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialWS(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendMsg(t *testing.T, ctx context.Context, conn *websocket.Conn, msg clientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// readUntil 读事件直到出现目标类型，返回沿途所有事件类型。
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, eventType string) []string {
	t.Helper()
	var types []string
	for {
		ev := readMsg(t, ctx, conn)
		types = append(types, ev["type"].(string))
		if ev["type"] == eventType {
			return types
		}
	}
}

// --- tests ---

func TestWSSessionFullTurn(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	url := newWSServer(t, SessionDeps{
		NewEngine: sameEngine(&textEngine{sentence: "Hello there."}),
		Speaker:   newPathSpeaker(t),
		Character: CharacterConfig{Name: "Mao", Avatar: "/avatars/mao.png"},
	}, WSConfig{})
	conn := dialWS(t, ctx, url+"?conversation=conv-ws")

	sendMsg(t, ctx, conn, clientMessage{Type: msgTextInput, Text: "hi"})

	types := readUntil(t, ctx, conn, conversation.EventChainEnd)
	assert.Equal(t, []string{
		conversation.EventChainStart,
		conversation.EventAudio,
		conversation.EventSynthComplete,
		conversation.EventForceNewMsg,
		conversation.EventChainEnd,
	}, types)
}

func TestWSInterruptFreesTurnSlot(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	engine := newSwitchEngine("Second answer.")
	url := newWSServer(t, SessionDeps{
		NewEngine: sameEngine(engine),
		Speaker:   newPathSpeaker(t),
		Character: CharacterConfig{Name: "Mao"},
	}, WSConfig{})
	conn := dialWS(t, ctx, url)

	sendMsg(t, ctx, conn, clientMessage{Type: msgTextInput, Text: "first"})
	ev := readMsg(t, ctx, conn)
	assert.Equal(t, conversation.EventChainStart, ev["type"])

	select {
	case <-engine.started:
	case <-ctx.Done():
		t.Fatal("engine never started streaming")
	}

	// 打断后紧接着的新输入必须被接受并完整走完。
	sendMsg(t, ctx, conn, clientMessage{Type: msgInterrupt})
	sendMsg(t, ctx, conn, clientMessage{Type: msgTextInput, Text: "second"})

	types := readUntil(t, ctx, conn, conversation.EventChainEnd)
	assert.Contains(t, types, conversation.EventAudio)
	for _, typ := range types {
		assert.NotEqual(t, conversation.EventError, typ, "interrupted slot should accept the next turn")
	}
}

func TestWSRejectsConcurrentTurn(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	engine := newSwitchEngine("unused")
	url := newWSServer(t, SessionDeps{NewEngine: sameEngine(engine)}, WSConfig{})
	conn := dialWS(t, ctx, url)

	sendMsg(t, ctx, conn, clientMessage{Type: msgTextInput, Text: "first"})
	<-engine.started

	sendMsg(t, ctx, conn, clientMessage{Type: msgTextInput, Text: "second"})

	types := readUntil(t, ctx, conn, conversation.EventError)
	assert.Equal(t, conversation.EventChainStart, types[0])
}

func TestWSFetchHistory(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	store := history.NewMemoryStore()
	require.NoError(t, store.Append(ctx, "conv-h", "human", "hello", "Human", ""))
	require.NoError(t, store.Append(ctx, "conv-h", "ai", "hi", "Mao", ""))

	url := newWSServer(t, SessionDeps{
		NewEngine: sameEngine(&textEngine{sentence: "x."}),
		History:   store,
	}, WSConfig{})
	conn := dialWS(t, ctx, url+"?conversation=conv-h")

	sendMsg(t, ctx, conn, clientMessage{Type: msgFetchHistory})

	msg := readMsg(t, ctx, conn)
	require.Equal(t, "history-data", msg["type"])
	msgs := msg["messages"].([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "hello", first["content"])
}

func TestWSFetchHistoryUnconfigured(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	url := newWSServer(t, SessionDeps{NewEngine: sameEngine(&textEngine{sentence: "x."})}, WSConfig{})
	conn := dialWS(t, ctx, url)

	sendMsg(t, ctx, conn, clientMessage{Type: msgFetchHistory})

	ev := readMsg(t, ctx, conn)
	assert.Equal(t, conversation.EventError, ev["type"])
	assert.Contains(t, ev["message"], "not configured")
}

func TestWSRateLimit(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	url := newWSServer(t, SessionDeps{NewEngine: sameEngine(&textEngine{sentence: "x."})},
		WSConfig{MessageRate: 0.001, MessageBurst: 1})
	conn := dialWS(t, ctx, url)

	// 突发额度只有 1，第二条立即超限。
	sendMsg(t, ctx, conn, clientMessage{Type: msgFetchHistory})
	sendMsg(t, ctx, conn, clientMessage{Type: msgFetchHistory})

	sawLimit := false
	for i := 0; i < 2 && !sawLimit; i++ {
		ev := readMsg(t, ctx, conn)
		if ev["type"] == conversation.EventError && strings.Contains(ev["message"].(string), "too many requests") {
			sawLimit = true
		}
	}
	assert.True(t, sawLimit, "second message should be rate limited")
}

func TestWSUnknownMessageType(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	url := newWSServer(t, SessionDeps{NewEngine: sameEngine(&textEngine{sentence: "x."})}, WSConfig{})
	conn := dialWS(t, ctx, url)

	sendMsg(t, ctx, conn, clientMessage{Type: "no-such-type"})

	ev := readMsg(t, ctx, conn)
	assert.Equal(t, conversation.EventError, ev["type"])
	assert.Contains(t, ev["message"], "unknown message type")
}

func TestWSAuth(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	const secret = "test-secret"
	url := newWSServer(t, SessionDeps{NewEngine: sameEngine(&textEngine{sentence: "x."})},
		WSConfig{AuthSecret: secret})

	t.Run("missing token rejected", func(t *testing.T) {
		_, resp, err := websocket.Dial(ctx, url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "tester",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("wrong-secret"))
		require.NoError(t, err)

		_, resp, err := websocket.Dial(ctx, url+"?token="+token, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token accepted", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "tester",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(secret))
		require.NoError(t, err)

		conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
		})
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "test done")

		sendMsg(t, ctx, conn, clientMessage{Type: msgTextInput, Text: "hi"})
		ev := readMsg(t, ctx, conn)
		assert.Equal(t, conversation.EventChainStart, ev["type"])
	})
}

func TestRouterHealthz(t *testing.T) {
	h, err := NewWSHandler(SessionDeps{NewEngine: sameEngine(&textEngine{sentence: "x."})}, WSConfig{}, zap.NewNop())
	require.NoError(t, err)
	srv := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestNewWSHandlerRequiresEngine(t *testing.T) {
	_, err := NewWSHandler(SessionDeps{}, WSConfig{}, zap.NewNop())
	assert.Error(t, err)
}
