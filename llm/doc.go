// 版权所有 2024 VoxFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、消息与流式
增量模型、错误语义。

# 概述

本包屏蔽 OpenAI 兼容端点在鉴权、错误语义和流式协议上的差异，
对上层暴露一致的请求与响应模型。流式输出以 [StreamChunk] 为最小
单元（文本增量或工具调用分片），分片的合并规则由 agent 包的聚合
器实现。

# 错误语义

所有上游故障统一映射为 [Error]，通过 [ErrorCode] 区分限流、超时、
网络错误与能力缺失。其中 [ErrToolsUnsupported] 是一个哨兵：后端
在运行期拒绝 tools 参数时返回，调用方应做会话级降级后立即重试，
而不是当作普通错误上报。[IsDegradable] 标记的错误类别在流式中途
出现时应就地降级为已累积文本，保证回合总能给出响应。
*/
package llm
