package layout

import (
	"strconv"
	"strings"
)

// TitleLines 生成标题页内容：crate 名、版本、描述、文件数以及生成参数。
// 每个参数一行，空字符串表示空行。
func TitleLines(b *Breaker, crate CrateInfo, files int, params []string) []VisualLine {
	muted := SpanStyle{Color: GutterColor}
	var lines []VisualLine
	blank := func() { lines = append(lines, VisualLine{Kind: LineTitle}) }

	lines = append(lines, b.BreakTitle(crate.Name, SpanStyle{Color: HeaderColor, Bold: true})...)
	if crate.Version != "" {
		lines = append(lines, b.BreakTitle("Version "+crate.Version, muted)...)
	}
	if crate.Description != "" {
		blank()
		lines = append(lines, b.BreakTitle(crate.Description, SpanStyle{Italic: true})...)
	}
	blank()
	lines = append(lines, b.BreakTitle(strconv.Itoa(files)+" "+plural(files, "file", "files"), muted)...)
	for _, p := range params {
		if strings.TrimSpace(p) == "" {
			blank()
			continue
		}
		lines = append(lines, b.BreakTitle(p, muted)...)
	}
	return lines
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
