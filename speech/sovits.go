package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/BaSui01/voxflow/internal/tlsutil"
)

// annotationRe GPT-SoVITS 不认识动作标注，送合成前剥掉。
var annotationRe = regexp.MustCompile(`\[.*?\]`)

// SoVITSProvider 对接 GPT-SoVITS 本地推理服务：整段文本 POST 过去，
// 响应体即音频字节。参考音频与提示词在配置里固定。
type SoVITSProvider struct {
	cfg    SoVITSConfig
	client *http.Client
}

// NewSoVITSProvider 创建 GPT-SoVITS 提供者。
func NewSoVITSProvider(cfg SoVITSConfig) *SoVITSProvider {
	if cfg.APIURL == "" {
		cfg.APIURL = "http://127.0.0.1:9880/"
	}
	if cfg.PromptLang == "" {
		cfg.PromptLang = "en"
	}
	if cfg.TextLang == "" {
		cfg.TextLang = "en"
	}
	if cfg.MediaType == "" {
		cfg.MediaType = "wav"
	}
	return &SoVITSProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout, 120*time.Second),
	}
}

func (p *SoVITSProvider) Name() string { return "gpt-sovits" }

type sovitsRequest struct {
	ReferWavPath   string `json:"refer_wav_path"`
	PromptText     string `json:"prompt_text"`
	PromptLanguage string `json:"prompt_language"`
	Text           string `json:"text"`
	TextLanguage   string `json:"text_language"`
}

// Synthesize 将文本转换为语音。
func (p *SoVITSProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	body := sovitsRequest{
		ReferWavPath:   p.cfg.RefAudioPath,
		PromptText:     p.cfg.PromptText,
		PromptLanguage: p.cfg.PromptLang,
		Text:           annotationRe.ReplaceAllString(req.Text, ""),
		TextLanguage:   p.cfg.TextLang,
	}

	payload, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sovits request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sovits error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	return &TTSResponse{
		Provider:  p.Name(),
		Audio:     resp.Body,
		Format:    p.cfg.MediaType,
		CharCount: len(req.Text),
		CreatedAt: time.Now(),
	}, nil
}

// SynthesizeToFile 将文本转换为语音并保存为文件。
func (p *SoVITSProvider) SynthesizeToFile(ctx context.Context, req *TTSRequest, filepath string) error {
	resp, err := p.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Audio.Close()

	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	_, err = io.Copy(file, resp.Audio)
	return err
}
