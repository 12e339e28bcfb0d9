package xrotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name        string
		tpl         string
		wantName    string
		wantExt     string
		wantPattern string
		wantErr     error
	}{
		{name: "默认模板", tpl: "log_{date}_{index}.txt", wantName: "log_{date}_{index}", wantExt: ".txt", wantPattern: "log_*_*.txt"},
		{name: "多个点取最后一个", tpl: "app.{date}.{index}.log", wantName: "app.{date}.{index}", wantExt: ".log", wantPattern: "app.*.*.log"},
		{name: "扩展名含占位符", tpl: "app_{date}.{index}", wantName: "app_{date}.{index}", wantExt: "", wantPattern: "app_*.*"},
		{name: "无扩展名", tpl: "{date}-{index}", wantName: "{date}-{index}", wantExt: "", wantPattern: "*-*"},
		{name: "缺少序号时追加", tpl: "log_{date}.txt", wantName: "log_{date}_{index}", wantExt: ".txt", wantPattern: "log_*_*.txt"},
		{name: "元字符被转义", tpl: "log[1]_{index}.txt", wantName: "log[1]_{index}", wantExt: ".txt", wantPattern: `log\[1\]_*.txt`},
		{name: "空模板", tpl: "", wantErr: ErrEmptyTemplate},
		{name: "包含斜杠", tpl: "a/{index}.txt", wantErr: ErrInvalidTemplate},
		{name: "包含反斜杠", tpl: `a\{index}.txt`, wantErr: ErrInvalidTemplate},
		{name: "包含空字节", tpl: "a\x00{index}.txt", wantErr: ErrInvalidTemplate},
		{name: "没有名称部分", tpl: ".log", wantErr: ErrInvalidTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTemplate(tt.tpl)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.name)
			assert.Equal(t, tt.wantExt, got.ext)
			assert.Equal(t, tt.wantPattern, got.pattern)
		})
	}
}

func TestNameTemplate_Render(t *testing.T) {
	tpl, err := parseTemplate("log_{date}_{index}.txt")
	require.NoError(t, err)

	tests := []struct {
		index int
		want  string
	}{
		{1, "log_202401021700_001.txt"},
		{12, "log_202401021700_012.txt"},
		{123, "log_202401021700_123.txt"},
		{1234, "log_202401021700_1234.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tpl.render("202401021700", tt.index))
	}
}

func TestNameTemplate_RenderRepeatedPlaceholder(t *testing.T) {
	tpl, err := parseTemplate("{date}_{index}_{date}.log")
	require.NoError(t, err)
	assert.Equal(t, "d_007_d.log", tpl.render("d", 7))
}

func TestNameTemplate_Matches(t *testing.T) {
	tpl, err := parseTemplate("log_{date}_{index}.txt")
	require.NoError(t, err)

	tests := []struct {
		base string
		want bool
	}{
		{"log_202401021700_001.txt", true},
		{"log_x_y.txt", true},
		{"log_202401021700_001.log", false},
		{"log_202401021700_001.txt.gz", false},
		{"app_202401021700_001.txt", false},
		{lockFileName, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tpl.matches(tt.base), tt.base)
	}
}

func TestNameTemplate_MatchesEscaped(t *testing.T) {
	tpl, err := parseTemplate("log[a]_{index}.txt")
	require.NoError(t, err)

	assert.True(t, tpl.matches("log[a]_001.txt"))
	assert.False(t, tpl.matches("loga_001.txt"))
}
