package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/voxflow/internal/metrics"
)

// CacheConfig 音频工件缓存配置。
type CacheConfig struct {
	// Dir 工件目录，不存在时自动创建。
	Dir string `json:"dir" yaml:"dir"`

	// Voice 合成声音，参与缓存键。
	Voice string `json:"voice,omitempty" yaml:"voice,omitempty"`

	// Format 工件格式（扩展名），默认 wav。
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Cache 内容寻址的音频工件缓存：工件名由 (引擎, 声音, 文本) 的
// SHA-256 决定，相同输入直接复用磁盘上的结果，跳过后端调用。
// 同键并发请求经 singleflight 合并，后端至多调用一次。
//
// Cache 同时就是回合编排层需要的合成器：文本进、工件路径出。
type Cache struct {
	provider TTSProvider
	cfg      CacheConfig
	metrics  *metrics.Collector
	logger   *zap.Logger
	sf       singleflight.Group
}

// NewCache 创建工件缓存。collector 可为 nil。
func NewCache(provider TTSProvider, cfg CacheConfig, collector *metrics.Collector, logger *zap.Logger) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("speech: cache dir is required")
	}
	if cfg.Format == "" {
		cfg.Format = "wav"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create cache dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		provider: provider,
		cfg:      cfg,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "audio_cache")),
	}, nil
}

// Name 返回底层引擎名。
func (c *Cache) Name() string { return c.provider.Name() }

// ArtifactPath 返回 text 对应的工件路径（不触发合成）。
func (c *Cache) ArtifactPath(text string) string {
	sum := sha256.Sum256([]byte(c.provider.Name() + "|" + c.cfg.Voice + "|" + text))
	return filepath.Join(c.cfg.Dir, hex.EncodeToString(sum[:])+"."+c.cfg.Format)
}

// Synthesize 合成 text 并返回工件路径，命中缓存时不调用后端。
func (c *Cache) Synthesize(ctx context.Context, text string) (string, error) {
	path := c.ArtifactPath(text)
	if _, err := os.Stat(path); err == nil {
		c.metrics.RecordCacheHit(c.provider.Name())
		c.logger.Debug("audio cache hit", zap.String("path", path))
		return path, nil
	}
	c.metrics.RecordCacheMiss(c.provider.Name())

	_, err, _ := c.sf.Do(path, func() (any, error) {
		// 并发等待者里第一个已经写完了就不用再合成。
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		tmp := path + ".tmp"
		req := &TTSRequest{Text: text, Voice: c.cfg.Voice, ResponseFormat: c.cfg.Format}
		if err := c.provider.SynthesizeToFile(ctx, req, tmp); err != nil {
			_ = os.Remove(tmp)
			return nil, err
		}
		return path, os.Rename(tmp, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}
