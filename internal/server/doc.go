// 版权所有 2024 VoxFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供对外服务层：HTTP 服务器生命周期管理与 WebSocket
会话端点。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、优雅关闭与
错误传播，内置 SIGINT/SIGTERM 信号处理。WSHandler 为每个进入的
连接建立一个独立会话：独占的回合控制器、TTS 调度器与序列化事件
写入器，模型引擎、语音后端与聊天历史等重依赖在会话间共享。

# 会话协议

客户端通过 JSON 控制消息驱动会话：

  - text-input：文本输入，开启一个回合。
  - mic-audio-end：音频输入（base64），先转写再走回合。
  - interrupt-signal：打断在途回合，服务端取消并等清理完成。
  - fetch-history：拉取当前会话的聊天历史。

服务端按事件协议下发回合进度（conversation 包定义），写操作
经 wsSink 串行化，投递顺序与产生顺序一致。

# 其他能力

  - JWT Bearer 鉴权（HMAC），未配置密钥时关闭。
  - 入站控制消息令牌桶限速。
  - /healthz 存活探针与 /metrics Prometheus 指标路由。
*/
package server
