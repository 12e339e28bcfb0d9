package xrotate

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	placeholderDate  = "{date}"
	placeholderIndex = "{index}"

	// indexWidth {index} 的最小位数
	indexWidth = 3
)

// nameTemplate 拆分后的文件名模板
type nameTemplate struct {
	name    string // 不含扩展名，保证包含 {index}
	ext     string // 含前导 "."，可能为空
	pattern string // filepath.Match 模式，占位符替换为 *
}

// parseTemplate 在最后一个 "." 处拆分模板。
// 扩展名中出现占位符时视为无扩展名。
func parseTemplate(tpl string) (nameTemplate, error) {
	if tpl == "" {
		return nameTemplate{}, ErrEmptyTemplate
	}
	if strings.ContainsAny(tpl, "/\\\x00") {
		return nameTemplate{}, fmt.Errorf("%w: %q must be a bare file name", ErrInvalidTemplate, tpl)
	}

	ext := filepath.Ext(tpl)
	name := strings.TrimSuffix(tpl, ext)
	if strings.ContainsAny(ext, "{}") {
		name, ext = tpl, ""
	}
	if name == "" {
		return nameTemplate{}, fmt.Errorf("%w: %q has no name part", ErrInvalidTemplate, tpl)
	}
	if !strings.Contains(name, placeholderIndex) {
		name += "_" + placeholderIndex
	}

	t := nameTemplate{name: name, ext: ext}
	t.pattern = strings.NewReplacer(placeholderDate, "*", placeholderIndex, "*").
		Replace(escapeMatch(name + ext))
	return t, nil
}

// render 渲染文件名，{index} 补零到至少 3 位
func (t nameTemplate) render(date string, index int) string {
	idx := strconv.Itoa(index)
	if pad := indexWidth - len(idx); pad > 0 {
		idx = strings.Repeat("0", pad) + idx
	}
	return strings.NewReplacer(placeholderDate, date, placeholderIndex, idx).Replace(t.name) + t.ext
}

// matches 判断 base 是否为该模板产生的文件名
func (t nameTemplate) matches(base string) bool {
	ok, err := filepath.Match(t.pattern, base)
	return err == nil && ok
}

// escapeMatch 转义 filepath.Match 的元字符
func escapeMatch(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
