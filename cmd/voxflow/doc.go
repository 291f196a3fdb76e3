// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 VoxFlow 服务端程序入口。

# 概述

cmd/voxflow 是 VoxFlow 的可执行入口，对外提供 WebSocket 会话端点、
健康检查与 Prometheus 指标。程序支持 YAML 配置文件加载、环境变量
覆盖与结构化日志（zap）。

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 组装链路：配置 → 日志 → 遥测 → 模型引擎工厂 → 语音后端
    （TTS 缓存 / STT 转写）→ 历史存储 → WebSocket 端点
  - Metrics：/metrics 暴露独立 registry（含进程与 Go 运行时采集器）
  - 优雅关闭：信号监听 → 排空 HTTP → 关闭历史存储 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
