// 版权所有 2024 VoxFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 speech 提供语音合成（TTS）与语音转写（STT）的统一接口及实现。

# 实现

  - OpenAITTSProvider / OpenAISTTProvider：OpenAI 语音端点
    （/v1/audio/speech、/v1/audio/transcriptions）。
  - SoVITSProvider：GPT-SoVITS 本地推理服务，整段文本 POST，
    响应体即音频字节；动作标注在送合成前剥除。

# 工件缓存

Cache 按 (引擎, 声音, 文本) 的 SHA-256 做内容寻址：相同输入直接
复用磁盘工件，同键并发合成经 singleflight 合并为一次后端调用。
Cache 自身即回合编排层所需的合成器（文本进、路径出）；Dictation
则把 STTProvider 适配成字节进、文本出的窄转写接口。
*/
package speech
