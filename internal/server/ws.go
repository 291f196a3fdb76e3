package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/voxflow/conversation"
	"github.com/BaSui01/voxflow/history"
	"github.com/BaSui01/voxflow/internal/metrics"
)

// =============================================================================
// 📡 WebSocket 会话端点
// =============================================================================

// 客户端控制消息类型。
const (
	msgTextInput    = "text-input"
	msgMicAudioEnd  = "mic-audio-end"
	msgInterrupt    = "interrupt-signal"
	msgFetchHistory = "fetch-history"
)

// clientMessage 客户端发来的控制消息。Audio 按 JSON 约定走 base64。
type clientMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio []byte `json:"audio,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// historyPayload fetch-history 的应答，事件协议之外的唯一下行消息。
type historyPayload struct {
	Type     string                `json:"type"`
	Messages []history.ChatMessage `json:"messages"`
}

// CharacterConfig 角色展示配置，逐会话复制给 Orchestrator。
type CharacterConfig struct {
	Name      string `yaml:"name" json:"name"`
	HumanName string `yaml:"human_name" json:"human_name"`
	Avatar    string `yaml:"avatar" json:"avatar"`
}

// SessionDeps 客户端会话的后端依赖。NewEngine 必填，每个会话调用
// 一次拿到独立引擎，工具能力降级因此只影响自己这条会话；
// Speaker/Transcriber/History 为 nil 时对应能力关闭。
type SessionDeps struct {
	NewEngine   func() conversation.ChatEngine
	Speaker     conversation.Speaker
	Transcriber conversation.Transcriber
	History     history.ChatStore
	Character   CharacterConfig
	Metrics     *metrics.Collector
	Logger      *zap.Logger
}

// WSConfig WebSocket 端点配置。
type WSConfig struct {
	// AuthSecret 非空时启用 JWT Bearer 鉴权（HMAC 签名）。
	AuthSecret string `yaml:"auth_secret" json:"auth_secret"`

	// 入站控制消息限速（条/秒）与突发额度。
	MessageRate  float64 `yaml:"message_rate" json:"message_rate"`
	MessageBurst int     `yaml:"message_burst" json:"message_burst"`

	// 单条消息大小上限，字节。音频走这里，默认放宽到 10 MB。
	MaxMessageBytes int64 `yaml:"max_message_bytes" json:"max_message_bytes"`
}

// DefaultWSConfig 返回默认端点配置。
func DefaultWSConfig() WSConfig {
	return WSConfig{
		MessageRate:     10,
		MessageBurst:    20,
		MaxMessageBytes: 10 << 20,
	}
}

// WSHandler 每个进入的连接建立一个独立会话：独占的 Orchestrator、
// TTS 调度器与序列化事件写入器，后端依赖共享。
type WSHandler struct {
	deps   SessionDeps
	config WSConfig
	logger *zap.Logger
}

// NewWSHandler 创建 WebSocket 端点。
func NewWSHandler(deps SessionDeps, config WSConfig, logger *zap.Logger) (*WSHandler, error) {
	if deps.NewEngine == nil {
		return nil, errors.New("server: engine factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MessageRate <= 0 {
		config.MessageRate = DefaultWSConfig().MessageRate
	}
	if config.MessageBurst <= 0 {
		config.MessageBurst = DefaultWSConfig().MessageBurst
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = DefaultWSConfig().MaxMessageBytes
	}
	return &WSHandler{
		deps:   deps,
		config: config,
		logger: logger.With(zap.String("component", "ws_handler")),
	}, nil
}

// ServeHTTP 实现 http.Handler。
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		h.logger.Warn("websocket auth rejected", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// 浏览器前端跨源直连，来源校验交给鉴权层。
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.config.MaxMessageBytes)

	conversationID := r.URL.Query().Get("conversation")
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	sess, err := h.newSession(conn, conversationID)
	if err != nil {
		h.logger.Error("session setup failed", zap.Error(err))
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	h.deps.Metrics.SessionOpened()
	defer h.deps.Metrics.SessionClosed()

	sess.run(r.Context())
}

// authorize 校验 Bearer JWT。未配置密钥时放行所有连接。
func (h *WSHandler) authorize(r *http.Request) error {
	if h.config.AuthSecret == "" {
		return nil
	}
	token := bearerToken(r)
	if token == "" {
		return errors.New("missing bearer token")
	}
	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(h.config.AuthSecret), nil
	})
	if err != nil {
		return fmt.Errorf("parse token: %w", err)
	}
	return nil
}

// bearerToken 从 Authorization 头或 token 查询参数取令牌。
// 浏览器的 WebSocket API 发不了自定义头，查询参数是兜底通道。
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// -----------------------------------------------------------------------------
// 会话
// -----------------------------------------------------------------------------

// session 单个客户端连接的全部状态。
type session struct {
	conn           *websocket.Conn
	sink           *wsSink
	orch           *conversation.Orchestrator
	handler        *WSHandler
	limiter        *rate.Limiter
	logger         *zap.Logger
	conversationID string

	// mu 保护 turnCancel；同一会话同一时刻至多一个活跃回合。
	mu         sync.Mutex
	turnCancel context.CancelFunc
	turnDone   chan struct{}
}

func (h *WSHandler) newSession(conn *websocket.Conn, conversationID string) (*session, error) {
	sink := newWSSink(conn, h.logger)

	var tts *conversation.TTSManager
	if h.deps.Speaker != nil {
		tts = conversation.NewTTSManager(h.deps.Speaker, sink, h.deps.Metrics, h.deps.Logger)
	}

	var store conversation.HistoryStore
	if h.deps.History != nil {
		store = h.deps.History
	}

	orch, err := conversation.NewOrchestrator(conversation.Options{
		Engine:         h.deps.NewEngine(),
		TTS:            tts,
		Transcriber:    h.deps.Transcriber,
		Store:          store,
		Sink:           sink,
		ConversationID: conversationID,
		CharacterName:  h.deps.Character.Name,
		HumanName:      h.deps.Character.HumanName,
		Avatar:         h.deps.Character.Avatar,
		Metrics:        h.deps.Metrics,
		Logger:         h.deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		conn:           conn,
		sink:           sink,
		orch:           orch,
		handler:        h,
		limiter:        rate.NewLimiter(rate.Limit(h.config.MessageRate), h.config.MessageBurst),
		logger:         h.logger.With(zap.String("conversation_id", conversationID), zap.String("session", orch.SessionTag())),
		conversationID: conversationID,
	}, nil
}

// run 读循环。客户端断开或读出错即退出，退出时取消在途回合。
func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.interrupt()
	defer s.conn.Close(websocket.StatusNormalClosure, "session closed")

	s.logger.Info("websocket session opened")
	defer s.logger.Info("websocket session closed")

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return
			}
			s.logger.Warn("websocket read failed", zap.Error(err))
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sink.Send(ctx, conversation.Event{Type: conversation.EventError, Message: "malformed message"})
			continue
		}
		s.handler.deps.Metrics.RecordWSMessage(msg.Type)

		if !s.limiter.Allow() {
			s.logger.Warn("client message rate limited", zap.String("type", msg.Type))
			s.sink.Send(ctx, conversation.Event{Type: conversation.EventError, Message: "too many requests, slow down"})
			continue
		}

		s.dispatch(ctx, msg)
	}
}

func (s *session) dispatch(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case msgTextInput:
		s.startTurn(ctx, conversation.TurnInput{Text: msg.Text})
	case msgMicAudioEnd:
		s.startTurn(ctx, conversation.TurnInput{Audio: msg.Audio})
	case msgInterrupt:
		s.interrupt()
	case msgFetchHistory:
		s.sendHistory(ctx, msg.Limit)
	default:
		s.logger.Warn("unknown client message", zap.String("type", msg.Type))
		s.sink.Send(ctx, conversation.Event{Type: conversation.EventError, Message: "unknown message type: " + msg.Type})
	}
}

// startTurn 在后台执行一个回合。已有回合在途时拒绝新输入，
// 客户端要打断必须先发 interrupt-signal。
func (s *session) startTurn(ctx context.Context, in conversation.TurnInput) {
	s.mu.Lock()
	if s.turnCancel != nil {
		s.mu.Unlock()
		s.sink.Send(ctx, conversation.Event{Type: conversation.EventError, Message: "a turn is already in flight"})
		return
	}
	turnCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.turnCancel = cancel
	s.turnDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.turnCancel = nil
			s.turnDone = nil
			s.mu.Unlock()
			cancel()
		}()

		_, err := s.orch.ProcessTurn(turnCtx, in)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			// 打断是正常路径，回合内部已经走完取消清理。
		default:
			s.logger.Error("turn failed", zap.Error(err))
		}
	}()
}

// interrupt 取消在途回合并等它完成清理。没有在途回合时是空操作。
func (s *session) interrupt() {
	s.mu.Lock()
	cancel := s.turnCancel
	done := s.turnDone
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	s.logger.Info("interrupting in-flight turn")
	cancel()
	<-done
}

// sendHistory 读取聊天历史并整体下发。
func (s *session) sendHistory(ctx context.Context, limit int) {
	store := s.handler.deps.History
	if store == nil {
		s.sink.Send(ctx, conversation.Event{Type: conversation.EventError, Message: "history is not configured"})
		return
	}
	msgs, err := store.Messages(ctx, s.conversationID, limit)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		s.logger.Error("history fetch failed", zap.Error(err))
		s.sink.Send(ctx, conversation.Event{Type: conversation.EventError, Message: "failed to fetch history"})
		return
	}
	if msgs == nil {
		msgs = []history.ChatMessage{}
	}
	if err := s.sink.sendJSON(ctx, historyPayload{Type: "history-data", Messages: msgs}); err != nil {
		s.logger.Warn("history push failed", zap.Error(err))
	}
}

// -----------------------------------------------------------------------------
// 事件写入器
// -----------------------------------------------------------------------------

// wsSink 把事件序列化后写入 WebSocket。写操作用 mutex 串行化，
// 保证投递顺序与调用顺序一致，WebSocket 也不允许并发写。
type wsSink struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex
}

func newWSSink(conn *websocket.Conn, logger *zap.Logger) *wsSink {
	return &wsSink{conn: conn, logger: logger.With(zap.String("component", "ws_sink"))}
}

// Send 实现 conversation.EventSink。
func (w *wsSink) Send(ctx context.Context, ev conversation.Event) error {
	return w.sendJSON(ctx, ev)
}

func (w *wsSink) sendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}
