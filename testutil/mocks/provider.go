// ScriptedProvider 的 LLM 提供商测试模拟实现。
//
// 支持按脚本回放流式分片、错误注入与调用记录。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/voxflow/llm"
)

// step 一次 Stream 调用的脚本：要么回放一组分片，要么直接失败。
type step struct {
	chunks []llm.StreamChunk
	err    error
}

// ScriptedProvider 是 llm.Provider 的模拟实现。每次 Stream 调用
// 按入队顺序消费一个脚本；脚本耗尽后返回空流。
type ScriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls []*llm.ChatRequest

	name          string
	supportsTools bool

	completion    *llm.ChatResponse
	completionErr error
}

// NewScriptedProvider 创建模拟 Provider。
func NewScriptedProvider(supportsTools bool) *ScriptedProvider {
	return &ScriptedProvider{
		name:          "scripted",
		supportsTools: supportsTools,
	}
}

// EnqueueStream 追加一个按序回放 chunks 的流式脚本。
func (p *ScriptedProvider) EnqueueStream(chunks ...llm.StreamChunk) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, step{chunks: chunks})
	return p
}

// EnqueueStreamError 追加一个在建连阶段即失败的脚本。
func (p *ScriptedProvider) EnqueueStreamError(err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, step{err: err})
	return p
}

// WithCompletion 配置 Completion 的固定响应。
func (p *ScriptedProvider) WithCompletion(resp *llm.ChatResponse, err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completion = resp
	p.completionErr = err
	return p
}

// Calls 返回所有 Stream/Completion 调用收到的请求快照。
func (p *ScriptedProvider) Calls() []*llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*llm.ChatRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// LastRequest 返回最近一次请求，没有调用过时返回 nil。
func (p *ScriptedProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

// Stream 实现 llm.Provider。
func (p *ScriptedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var next step
	if len(p.steps) > 0 {
		next = p.steps[0]
		p.steps = p.steps[1:]
	}
	p.mu.Unlock()

	if next.err != nil {
		return nil, next.err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for _, chunk := range next.chunks {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Completion 实现 llm.Provider。
func (p *ScriptedProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.completionErr != nil {
		return nil, p.completionErr
	}
	if p.completion != nil {
		return p.completion, nil
	}
	return nil, errors.New("mocks: no completion configured")
}

// HealthCheck 实现 llm.Provider。
func (p *ScriptedProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Name 实现 llm.Provider。
func (p *ScriptedProvider) Name() string { return p.name }

// SupportsNativeFunctionCalling 实现 llm.Provider。
func (p *ScriptedProvider) SupportsNativeFunctionCalling() bool { return p.supportsTools }
