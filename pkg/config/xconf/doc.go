// Package xconf 提供基于 koanf 的配置加载、反序列化和热重载。
//
// xconf 只做加载：不负责必选字段校验或默认值注入，这些由使用方在
// Unmarshal 前预填、Unmarshal 后校验。例如 xrotate.LoadRollingConfig
// 先填入默认 RollingConfig，再覆盖配置中出现的键。
//
// # 支持的格式
//
//   - YAML：.yaml, .yml
//   - JSON：.json
//
// # 并发安全
//
// 所有方法并发安全。当前 koanf 快照通过原子指针发布，
// Reload 解析成功后整体替换快照，失败时旧配置继续生效。
// Client() 返回的指针在 Reload 之后仍可读，但内容过期，不要长期缓存。
//
// # 配置监视
//
// [Watch] 基于 fsnotify 监视配置文件所在目录，内置防抖，
// 文件变更后自动 Reload 并回调。从字节数据创建的 Config 不支持监视。
//
//	cfg, err := xconf.New("/etc/xrollctl/rolling.yaml")
//	if err != nil {
//	    return err
//	}
//	w, err := xconf.Watch(cfg, func(c xconf.Config, err error) {
//	    if err != nil {
//	        logger.Warn(ctx, "reload failed", slog.Any("error", err))
//	    }
//	})
//	if err != nil {
//	    return err
//	}
//	w.StartAsync()
//	defer w.Stop()
package xconf
