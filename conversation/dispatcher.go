package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/voxflow/agent"
	"github.com/BaSui01/voxflow/internal/metrics"
)

// Speaker 语音合成后端的窄接口：文本进、音频工件路径出。
type Speaker interface {
	// Name 返回引擎名，用于日志与指标标签。
	Name() string

	// Synthesize 合成一段文本，返回音频文件路径。
	Synthesize(ctx context.Context, text string) (string, error)
}

// synthJob 一个进行中的合成任务。seq 即调度序号，同时是投递序号。
type synthJob struct {
	id      string
	seq     int
	text    string
	display *agent.DisplayText
	actions []string

	done      bool
	audioPath string
	err       error
}

// TTSManager 合成任务调度器：任务并发执行，投递严格按调度顺序
// （FIFO 闸门，显式 nextDeliver 游标），单个任务失败只上报该任务的
// 错误事件，不波及兄弟任务。
//
// 一个 TTSManager 服务一个客户端会话，跨回合复用；每个回合结束时
// 由回合控制器调用 Clear 释放任务列表。
type TTSManager struct {
	speaker Speaker
	sink    EventSink
	logger  *zap.Logger
	metrics *metrics.Collector

	g errgroup.Group

	mu          sync.Mutex
	jobs        []*synthJob
	nextDeliver int
	abandoned   bool
}

// NewTTSManager 创建合成调度器。collector 可为 nil。
func NewTTSManager(speaker Speaker, sink EventSink, collector *metrics.Collector, logger *zap.Logger) *TTSManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TTSManager{
		speaker: speaker,
		sink:    sink,
		metrics: collector,
		logger:  logger.With(zap.String("component", "tts_manager")),
	}
}

// Speak 调度一个合成任务后立即返回（fire-and-forget）。
// 投递顺序由调度顺序决定，与完成顺序无关。
func (m *TTSManager) Speak(ctx context.Context, text string, display *agent.DisplayText, actions []string) {
	m.mu.Lock()
	job := &synthJob{
		id:      uuid.NewString(),
		seq:     len(m.jobs),
		text:    text,
		display: display,
		actions: actions,
	}
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()

	m.logger.Debug("synthesis job scheduled",
		zap.String("job_id", job.id),
		zap.Int("seq", job.seq))

	m.g.Go(func() error {
		start := time.Now()
		path, err := m.speaker.Synthesize(ctx, text)
		status := "done"
		if err != nil {
			status = "failed"
		}
		m.metrics.RecordSynthesis(m.speaker.Name(), status, time.Since(start))
		m.complete(ctx, job, path, err)
		return nil
	})
}

// JobCount 返回本回合已调度的任务数。
func (m *TTSManager) JobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Wait 阻塞到所有已调度任务终结。ctx 取消时放弃剩余任务并返回
// ctx.Err()，迟到的结果会被静默丢弃。
func (m *TTSManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = m.g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.Abandon()
		return ctx.Err()
	}
}

// Abandon 放弃未投递的任务：此后任何任务完成都不再产生客户端事件。
func (m *TTSManager) Abandon() {
	m.mu.Lock()
	m.abandoned = true
	m.mu.Unlock()
}

// Clear 重置任务列表与投递游标，供下一回合复用。
func (m *TTSManager) Clear() {
	m.mu.Lock()
	m.jobs = nil
	m.nextDeliver = 0
	m.abandoned = false
	m.mu.Unlock()
}

// complete 登记任务结果并推进 FIFO 闸门。投递在锁内进行，保证
// 并发完成的任务不会交错写入客户端通道。
func (m *TTSManager) complete(ctx context.Context, job *synthJob, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.done = true
	job.audioPath = path
	job.err = err

	if m.abandoned {
		return
	}
	m.flushLocked(ctx)
}

// flushLocked 从 nextDeliver 起投递所有连续完成的任务。
func (m *TTSManager) flushLocked(ctx context.Context) {
	for m.nextDeliver < len(m.jobs) && m.jobs[m.nextDeliver].done {
		job := m.jobs[m.nextDeliver]
		m.nextDeliver++

		if job.err != nil {
			// 取消导致的失败静默丢弃，不算合成故障。
			if errors.Is(job.err, context.Canceled) || errors.Is(job.err, context.DeadlineExceeded) {
				continue
			}
			m.logger.Error("synthesis job failed",
				zap.String("job_id", job.id),
				zap.Int("seq", job.seq),
				zap.Error(job.err))
			m.send(ctx, Event{
				Type:    EventError,
				Message: "speech synthesis failed: " + job.err.Error(),
			})
			continue
		}

		ev := Event{
			Type:      EventAudio,
			AudioPath: job.audioPath,
			Text:      job.text,
			Actions:   job.actions,
		}
		if job.display != nil {
			ev.Text = job.display.Text
			ev.Name = job.display.Name
			ev.Avatar = job.display.Avatar
		}
		m.send(ctx, ev)
	}
}

func (m *TTSManager) send(ctx context.Context, ev Event) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Send(ctx, ev); err != nil {
		m.logger.Warn("client push failed", zap.String("event", ev.Type), zap.Error(err))
	}
}
