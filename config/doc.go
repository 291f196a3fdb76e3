// Package config 提供 VoxFlow 的配置管理功能。
//
// 配置从默认值出发，依次被 YAML 文件与环境变量覆盖
// （前缀 VOXFLOW，嵌套字段用下划线连接）。进程启动时
// 加载一次，运行期间不变。
package config
