package fonts

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
)

// GoMono 是内置等宽字体族的名字。
const GoMono = "GoMono"

// Set 是一个字体族的四种样式；缺失的样式由 Regular 代替。
type Set struct {
	Name       string
	Regular    []byte
	Bold       []byte
	Italic     []byte
	BoldItalic []byte
}

// Style 按粗体/斜体选择字体数据。
func (s Set) Style(bold, italic bool) []byte {
	var data []byte
	switch {
	case bold && italic:
		data = s.BoldItalic
	case bold:
		data = s.Bold
	case italic:
		data = s.Italic
	default:
		data = s.Regular
	}
	if len(data) == 0 {
		return s.Regular
	}
	return data
}

// Builtin 返回内置的 Go Mono 字体族。
func Builtin() Set {
	return Set{
		Name:       GoMono,
		Regular:    gomono.TTF,
		Bold:       gomonobold.TTF,
		Italic:     gomonoitalic.TTF,
		BoldItalic: gomonobolditalic.TTF,
	}
}

// Load 返回字体族：名字为空或 "builtin:GoMono" 时使用内置字体，否则把 name 当作常规体 TTF/OTF 路径。
func Load(name string) (Set, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(name, "builtin:"), "built-in:")
	if clean == "" || strings.EqualFold(clean, GoMono) {
		return Builtin(), nil
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return Set{}, fmt.Errorf("读取字体 %s 失败: %w", clean, err)
	}
	return Set{Name: clean, Regular: data}, nil
}
