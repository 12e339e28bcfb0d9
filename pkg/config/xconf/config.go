package xconf

import "github.com/knadh/koanf/v2"

// Format 配置文件格式。
type Format string

// 支持的配置格式。
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 配置接口。
//
// 只提供加载、反序列化和重载，读取单个键请直接使用 Client() 返回的 koanf 实例。
type Config interface {
	// Client 返回当前的 koanf 快照。Reload 之后旧快照仍可读，但内容过期。
	Client() *koanf.Koanf

	// Unmarshal 将 path 节点反序列化到 target，path 为空时反序列化整个配置。
	// target 中已有的值在对应键缺失时保持不变，可用于预填默认值。
	Unmarshal(path string, target any) error

	// Reload 重新读取配置文件。解析失败时保留旧配置。
	// 从字节数据创建的 Config 返回 [ErrNotReloadable]。
	Reload() error

	// Path 返回配置文件路径，从字节数据创建时为空。
	Path() string

	// Format 返回配置格式。
	Format() Format
}

// MustUnmarshal 与 Config.Unmarshal 相同，但失败时 panic。
// 只用于程序启动阶段的必要配置。
func MustUnmarshal(cfg Config, path string, target any) {
	if err := cfg.Unmarshal(path, target); err != nil {
		panic(err)
	}
}
