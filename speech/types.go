// 软件包 speech 提供统一的 TTS 和 STT 供应商接口.
package speech

import (
	"context"
	"io"
	"time"
)

// ============================================================
// 文字对语音( TTS)
// ============================================================

// TTSRequest 代表文本对语音请求.
type TTSRequest struct {
	Text           string  `json:"text"`
	Model          string  `json:"model,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	Speed          float64 `json:"speed,omitempty"`           // 0.25-4.0
	ResponseFormat string  `json:"response_format,omitempty"` // mp3, wav, opus, pcm
	Language       string  `json:"language,omitempty"`
}

// TTSResponse 代表来自 TTS 请求的回应.
type TTSResponse struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Audio     io.ReadCloser `json:"-"` // Audio stream
	Format    string        `json:"format"`
	CharCount int           `json:"char_count,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// TTSProvider 定义了 TTS 提供者接口.
type TTSProvider interface {
	// Synthesize 将文本转换为语音.
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)

	// SynthesizeToFile 将文本转换为语音并保存为文件。
	SynthesizeToFile(ctx context.Context, req *TTSRequest, filepath string) error

	// Name 返回提供者名称。
	Name() string
}

// ============================================================
// 语音对文本( STT)
// ============================================================

// STTRequest 代表语音对文本请求.
type STTRequest struct {
	Audio          io.Reader `json:"-"`
	Model          string    `json:"model,omitempty"`
	Language       string    `json:"language,omitempty"` // ISO-639-1 code
	Prompt         string    `json:"prompt,omitempty"`   // Context hint
	ResponseFormat string    `json:"response_format,omitempty"`
}

// STTResponse 代表来自 STT 请求的答复.
type STTResponse struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Text      string        `json:"text"`
	Language  string        `json:"language,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// STTProvider 定义了 STT 提供者接口.
type STTProvider interface {
	// Transcribe 将语音转换为文本。
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)

	// Name 返回提供者名称。
	Name() string
}
