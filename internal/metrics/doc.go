// 版权所有 2024 VoxFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
会话回合、模型流式、语音合成、音频缓存与 WebSocket 会话五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
工厂绑定调用方传入的 Registerer，便于测试隔离。所有指标按
namespace 隔离，支持多维度 label 分组，便于 Grafana 等工具进行
可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理；所有记录方法对 nil
    接收者安全，调用方可以用 nil 表示关闭指标。

# 主要能力

  - 回合指标：回合总数与耗时，按 outcome（completed/cancelled/
    failed）分组。
  - 流式指标：模型分片消费计数、工具能力降级计数，按 provider 分组。
  - 合成指标：合成任务总数与耗时，按 engine/status 分组。
  - 缓存指标：音频缓存命中与未命中计数，按 engine 分组。
  - 会话指标：活跃 WebSocket 会话 Gauge、入站控制消息计数。
*/
package metrics
