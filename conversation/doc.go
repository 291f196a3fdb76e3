// 版权所有 2024 VoxFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 实现会话回合的端到端编排：输入解析、模型输出
排空、回复清洗、语音合成调度与客户端事件推送。

# 核心类型

  - Orchestrator：回合控制器。一个客户端会话持有一个实例，
    同一时刻至多一个活跃回合；任何退出路径（成功、失败、取消）
    都执行清理。
  - TTSManager：合成任务调度器。任务并发执行，投递严格按调度
    顺序（FIFO 闸门）；单任务失败只上报该任务，不波及其余任务；
    取消后迟到的结果静默丢弃。
  - Event / EventSink：客户端事件协议与有序推送通道。
  - Normalize：回复清洗纯函数，幂等。

# 回合流程

conversation-chain-start → 转写或透传输入 → 人类消息入史 →
排空模型输出（工具状态即时透传，句子文本累积）→ Normalize →
单次合成 → backend-synth-complete → force-new-message →
conversation-chain-end → AI 消息入史。

模型层故障在引擎内降级为部分文本，回合照常终结；持久化失败记
日志后继续；取消在清理后原样上抛，绝不转换成普通错误事件。
*/
package conversation
