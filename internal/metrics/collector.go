// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。方法对 nil 接收者安全，未接线指标时可直接传 nil。
type Collector struct {
	// 会话回合指标
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	// 模型流式指标
	streamChunksTotal  *prometheus.CounterVec
	toolDowngradeTotal *prometheus.CounterVec

	// 语音合成指标
	synthJobsTotal *prometheus.CounterVec
	synthDuration  *prometheus.HistogramVec

	// 音频缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// WebSocket 会话指标
	wsSessionsActive prometheus.Gauge
	wsMessagesTotal  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并把所有指标注册到 reg。
// reg 为 nil 时使用默认 Registerer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 会话回合指标
	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	c.turnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Conversation turn duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// 模型流式指标
	c.streamChunksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Total number of model stream chunks consumed",
		},
		[]string{"provider"},
	)

	c.toolDowngradeTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_downgrades_total",
			Help:      "Total number of session tool-capability downgrades",
		},
		[]string{"provider"},
	)

	// 语音合成指标
	c.synthJobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_jobs_total",
			Help:      "Total number of speech synthesis jobs by status",
		},
		[]string{"engine", "status"},
	)

	c.synthDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Speech synthesis job duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	// 音频缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of audio cache hits",
		},
		[]string{"engine"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of audio cache misses",
		},
		[]string{"engine"},
	)

	// WebSocket 会话指标
	c.wsSessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_sessions_active",
			Help:      "Number of active WebSocket client sessions",
		},
	)

	c.wsMessagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Total number of inbound WebSocket control messages",
		},
		[]string{"type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 回合指标记录
// =============================================================================

// RecordTurn 记录一次会话回合的结局与耗时。
func (c *Collector) RecordTurn(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(outcome).Inc()
	c.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStreamChunk 记录消费到的一个模型流式分片。
func (c *Collector) RecordStreamChunk(provider string) {
	if c == nil {
		return
	}
	c.streamChunksTotal.WithLabelValues(provider).Inc()
}

// RecordToolDowngrade 记录一次会话级工具能力降级。
func (c *Collector) RecordToolDowngrade(provider string) {
	if c == nil {
		return
	}
	c.toolDowngradeTotal.WithLabelValues(provider).Inc()
}

// =============================================================================
// 🔊 合成指标记录
// =============================================================================

// RecordSynthesis 记录一个合成任务的状态与耗时。
func (c *Collector) RecordSynthesis(engine, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.synthJobsTotal.WithLabelValues(engine, status).Inc()
	c.synthDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordCacheHit 记录音频缓存命中。
func (c *Collector) RecordCacheHit(engine string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(engine).Inc()
}

// RecordCacheMiss 记录音频缓存未命中。
func (c *Collector) RecordCacheMiss(engine string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(engine).Inc()
}

// =============================================================================
// 🌐 会话指标记录
// =============================================================================

// SessionOpened 活跃 WebSocket 会话数 +1。
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.wsSessionsActive.Inc()
}

// SessionClosed 活跃 WebSocket 会话数 -1。
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.wsSessionsActive.Dec()
}

// RecordWSMessage 记录一条入站控制消息。
func (c *Collector) RecordWSMessage(msgType string) {
	if c == nil {
		return
	}
	c.wsMessagesTotal.WithLabelValues(msgType).Inc()
}
