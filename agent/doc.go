// 版权所有 2024 VoxFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 agent 实现面向单个会话的模型交互引擎：流式聚合、会话级工具
能力降级、多轮工具调用循环与 token 预算裁剪。

# 核心类型

  - Engine：会话引擎。持有 Provider 与原子工具能力标志，
    Chat 返回封闭变体的输出流（工具状态 / 句子单元 / 音频单元）。
  - Aggregator：单遍消费 llm.StreamChunk 通道，文本增量拼接、
    工具调用分片按 index 合并；半成品调用绝不外泄。
  - OutputItem：输出流的封闭变体类型，消费方做穷尽类型开关。

# 能力降级

后端通过 llm.ErrToolsUnsupported 哨兵声明不支持工具调用时，
Engine 对本会话做单调降级（CompareAndSwap 保证恰好重试一次），
之后所有回合都不再携带 tools 参数，也不会复位。

# 故障策略

限流、连接类故障不终止回合：聚合器提前收尾，截至故障点的部分
文本即最终结果；没有文本时用人类可读的错误串充当回复。
*/
package agent
