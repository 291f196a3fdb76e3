// 版权所有 2024 VoxFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 testutil 提供测试基础设施：上下文与轮询辅助（本包）、
llm.Provider 的脚本化模拟（mocks 子包）与预置流式响应脚本
（fixtures 子包）。

仅供本仓库测试使用，不保证接口稳定。
*/
package testutil
