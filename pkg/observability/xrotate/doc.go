// Package xrotate 提供日志文件轮转功能。
//
// [Rotator] 接口定义了轮转器的核心行为（Write/Close/Rotate），所有实现并发安全。
//
// # 当前实现
//
//   - [NewRollingFile]: 按大小切换到新编号文件，按数量清理旧文件
//   - [NewLumberjack]: 基于 lumberjack v2 的单文件名 + 时间戳备份轮转
//
// # RollingFile 文件命名
//
// 文件名模板包含 {date} 和 {index} 两个占位符，例如 "log_{date}_{index}.txt"。
// {index} 至少补零到 3 位（001、002、…、123）。模板缺少 {index} 时在扩展名前
// 追加 "_{index}"。
//
// 每条记录的格式为：
//
//	<时间戳> - <消息><行尾>
//
// # 轮转与保留
//
// 当前文件大小加上待写入记录的长度超过 MaxFileSizeBytes 时触发轮转：
// 关闭当前文件，按修改时间删除最旧的匹配文件直到剩余 FilesToKeep-1 个，
// 再从当前序号开始探测第一个不存在的文件名。日期串变化时序号重置为 1。
//
// # 异步写入
//
// [NewAsync] 在任意 [LineWriter] 前加一个有界队列和单个后台 goroutine。
// 后台 goroutine 仍然通过 RollingFile 的互斥锁串行写入，记录之间不会交错。
//
// # 指标
//
// [WithMeterProvider] 启用 OpenTelemetry 计数器（[MetricLinesWritten]、
// [MetricRotations] 等），未设置时不采集。
//
// # 扩展新实现
//
//  1. 创建新文件实现 Rotator 接口
//  2. 定义独立的 Config 和 Option
//  3. 提供独立的构造函数
//  4. 不修改 Rotator 接口
package xrotate
