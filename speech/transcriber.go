package speech

import (
	"bytes"
	"context"
)

// Dictation 把 STTProvider 适配成回合编排层需要的窄转写接口：
// 音频字节进、文本出。
type Dictation struct {
	provider STTProvider
	language string
}

// NewDictation 创建转写适配器。language 可为空，由后端自动检测。
func NewDictation(provider STTProvider, language string) *Dictation {
	return &Dictation{provider: provider, language: language}
}

// Transcribe 将音频字节转成文本。
func (d *Dictation) Transcribe(ctx context.Context, audio []byte) (string, error) {
	resp, err := d.provider.Transcribe(ctx, &STTRequest{
		Audio:    bytes.NewReader(audio),
		Language: d.language,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
