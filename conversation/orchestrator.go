package conversation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/agent"
	"github.com/BaSui01/voxflow/internal/metrics"
	"github.com/BaSui01/voxflow/llm"
)

// ErrTurnInFlight 同一会话上已有回合在执行。上一回合（含清理）
// 结束前不允许开启新回合。
var ErrTurnInFlight = errors.New("conversation: a turn is already in flight")

// 历史消息角色，与前端/存储协议对齐。
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// sessionEmojis 会话标记池，建会话时随机取一个，只用于日志定位。
var sessionEmojis = []string{"🐶", "🐱", "🐼", "🦊", "🐻", "🐯", "🦁", "🐸", "🐵", "🦉"}

// ChatEngine 模型后端句柄的窄接口。输出通道在交互结束后关闭。
type ChatEngine interface {
	Chat(ctx context.Context, msgs []llm.Message) <-chan agent.OutputItem
}

// Transcriber 语音转写后端：音频进、文本出。
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// HistoryStore 聊天历史的追加写接口。
type HistoryStore interface {
	Append(ctx context.Context, conversationID, role, content, name, avatar string) error
}

// Options Orchestrator 依赖与会话配置。Engine 与 Sink 必填，
// 其余协作方可为 nil（对应能力关闭）。
type Options struct {
	Engine      ChatEngine
	TTS         *TTSManager
	Transcriber Transcriber
	Store       HistoryStore
	Sink        EventSink

	ConversationID string
	CharacterName  string
	HumanName      string
	Avatar         string

	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Orchestrator 会话回合控制器：驱动一个回合从输入到终态的完整
// 状态机，并保证任何退出路径下清理都执行。每个客户端会话持有一个
// Orchestrator，回合串行。
type Orchestrator struct {
	engine  ChatEngine
	tts     *TTSManager
	stt     Transcriber
	store   HistoryStore
	sink    EventSink
	metrics *metrics.Collector
	logger  *zap.Logger

	conversationID string
	characterName  string
	humanName      string
	avatar         string
	sessionTag     string

	// turnMu 保证同会话同一时刻至多一个活跃回合。
	turnMu sync.Mutex

	// memory 会话内的多轮上下文，仅由活跃回合读写。
	memory []llm.Message
}

// NewOrchestrator 创建回合控制器。
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Engine == nil {
		return nil, errors.New("conversation: engine is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("conversation: event sink is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HumanName == "" {
		opts.HumanName = "Human"
	}
	tag := sessionEmojis[rand.Intn(len(sessionEmojis))]
	return &Orchestrator{
		engine:         opts.Engine,
		tts:            opts.TTS,
		stt:            opts.Transcriber,
		store:          opts.Store,
		sink:           opts.Sink,
		metrics:        opts.Metrics,
		logger:         logger.With(zap.String("component", "orchestrator"), zap.String("session", tag)),
		conversationID: opts.ConversationID,
		characterName:  opts.CharacterName,
		humanName:      opts.HumanName,
		avatar:         opts.Avatar,
		sessionTag:     tag,
	}, nil
}

// SessionTag 返回会话日志标记。
func (o *Orchestrator) SessionTag() string { return o.sessionTag }

// ProcessTurn 执行一个完整回合，返回清洗后的回复文本。
//
// 状态机：pending → streaming → synthesizing → completed。
// 模型层故障降级为部分文本，回合照常走完；取消在清理后原样
// 上抛（返回 ctx 的错误，不转成错误事件）；其余故障进 failed，
// 清理同样执行。
func (o *Orchestrator) ProcessTurn(ctx context.Context, in TurnInput) (string, error) {
	if !o.turnMu.TryLock() {
		return "", ErrTurnInFlight
	}
	defer o.turnMu.Unlock()

	turn := newTurn(o.conversationID, in)
	start := time.Now()

	tracer := otel.Tracer("voxflow/conversation")
	ctx, span := tracer.Start(ctx, "conversation.turn")
	span.SetAttributes(
		attribute.String("turn.id", turn.ID),
		attribute.String("conversation.id", turn.ConversationID),
	)

	o.logger.Info("conversation chain started", zap.String("turn_id", turn.ID))

	// 清理：所有退出路径执行。释放 TTS 任务列表并记录回合终态。
	defer func() {
		if o.tts != nil {
			o.tts.Clear()
		}
		o.metrics.RecordTurn(string(turn.Status), time.Since(start))
		o.logger.Info("conversation chain ended",
			zap.String("turn_id", turn.ID),
			zap.String("status", string(turn.Status)),
			zap.Duration("elapsed", time.Since(start)))
		span.SetAttributes(attribute.String("turn.status", string(turn.Status)))
		span.End()
	}()

	resp, err := o.runTurn(ctx, turn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, turn *Turn) (string, error) {
	o.send(ctx, Event{Type: EventChainStart})

	// 输入解析：文本透传，音频走转写。转写失败属于不可屏蔽故障。
	inputText := turn.Input.Text
	if inputText == "" && len(turn.Input.Audio) > 0 {
		if o.stt == nil {
			turn.Status = StatusFailed
			o.send(ctx, Event{Type: EventError, Message: "audio input received but no transcriber configured"})
			return "", errors.New("conversation: no transcriber configured")
		}
		text, err := o.stt.Transcribe(ctx, turn.Input.Audio)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", o.cancelled(turn, ctxErr)
			}
			turn.Status = StatusFailed
			o.send(ctx, Event{Type: EventError, Message: "transcription failed: " + err.Error()})
			return "", fmt.Errorf("transcribe input: %w", err)
		}
		inputText = text
		o.send(ctx, Event{Type: EventTranscription, Text: inputText, Name: o.humanName})
	}
	o.logger.Info("user input", zap.String("text", inputText))

	// 人类消息入史。持久化失败记日志后继续，不影响回合。
	if !turn.Input.SkipHistory {
		o.persist(ctx, RoleHuman, inputText, o.humanName, "")
	}

	o.memory = append(o.memory, llm.Message{
		Role:    llm.RoleUser,
		Content: inputText,
		Name:    o.humanName,
		Images:  turn.Input.Images,
	})

	// 排空模型输出：工具状态立即透传，句子/音频文本累积缓冲。
	// 模型层故障已在引擎内降级为文本，这里只管消费。
	turn.Status = StatusStreaming
	var buf strings.Builder
	for item := range o.engine.Chat(ctx, o.memory) {
		switch it := item.(type) {
		case agent.ToolStatusItem:
			o.send(ctx, Event{
				Type:     EventToolCallStatus,
				ToolID:   it.ToolID,
				ToolName: it.ToolName,
				Status:   it.Status,
				Content:  it.Content,
				Name:     o.characterName,
			})
		case agent.SentenceItem:
			buf.WriteString(it.TTSText)
		case agent.AudioItem:
			buf.WriteString(it.Transcript)
		default:
			o.logger.Warn("unexpected agent output item", zap.Any("item", item))
		}
	}
	if err := ctx.Err(); err != nil {
		return "", o.cancelled(turn, err)
	}

	// 清洗：空文本直接收尾，不调度合成。
	turn.Status = StatusSynthesizing
	turn.Response = Normalize(buf.String())
	o.logger.Debug("normalized response", zap.String("text", turn.Response))

	if turn.Response != "" && o.tts != nil {
		o.tts.Speak(ctx, turn.Response, &agent.DisplayText{
			Text:   turn.Response,
			Name:   o.characterName,
			Avatar: o.avatar,
		}, nil)
	}

	// 合成汇合点：全部任务终结后才发 backend-synth-complete，
	// 且仅在确实调度过任务时发。
	if o.tts != nil && o.tts.JobCount() > 0 {
		if err := o.tts.Wait(ctx); err != nil {
			return "", o.cancelled(turn, err)
		}
		o.send(ctx, Event{Type: EventSynthComplete})
	}

	// 收尾信号：chain-end 永远是成功回合的最后一条事件。
	o.send(ctx, Event{Type: EventForceNewMsg})
	o.send(ctx, Event{Type: EventChainEnd})

	if !turn.Input.SkipHistory && turn.Response != "" {
		o.persist(ctx, RoleAI, turn.Response, o.characterName, o.avatar)
		o.logger.Info("ai response", zap.String("text", turn.Response))
	}
	if turn.Response != "" {
		o.memory = append(o.memory, llm.Message{
			Role:    llm.RoleAssistant,
			Content: turn.Response,
			Name:    o.characterName,
		})
	}

	turn.Status = StatusCompleted
	return turn.Response, nil
}

// cancelled 走取消路径：放弃未投递的合成任务并把取消原样上抛。
func (o *Orchestrator) cancelled(turn *Turn, err error) error {
	turn.Status = StatusCancelled
	if o.tts != nil {
		o.tts.Abandon()
	}
	o.logger.Info("conversation turn cancelled", zap.String("turn_id", turn.ID))
	return err
}

func (o *Orchestrator) send(ctx context.Context, ev Event) {
	if err := o.sink.Send(ctx, ev); err != nil {
		o.logger.Warn("client push failed", zap.String("event", ev.Type), zap.Error(err))
	}
}

func (o *Orchestrator) persist(ctx context.Context, role, content, name, avatar string) {
	if o.store == nil || content == "" {
		return
	}
	if err := o.store.Append(ctx, o.conversationID, role, content, name, avatar); err != nil {
		o.logger.Error("history append failed",
			zap.String("role", role),
			zap.Error(err))
	}
}
