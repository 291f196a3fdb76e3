// 版权所有 2024 VoxFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 history 提供聊天历史的追加写存储。

三个实现共享同一契约（ChatStore）：

  - MemoryStore：进程内，默认实现与测试基座。
  - RedisStore：每会话一个 List，RPUSH JSON 文档，适合多实例部署。
  - SQLiteStore：GORM + 纯 Go SQLite 驱动的单机持久化。

持久化不在回合的关键路径上：上层对写入失败记日志后继续。
*/
package history
