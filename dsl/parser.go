package dsl

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/ByLCY/codepress/layout"
)

// 纸张与页边距的小语法：
//
//	paper   := ( Ident | Number Times Number ) ( "portrait" | "landscape" )?
//	margins := Number{1,4}
//
// Number 可以带 mm/cm/in/pt 后缀，缺省为 mm；逗号视同空白。
var (
	exprLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r\n,]+`},
		{Name: "Number", Pattern: `(?:\d+\.\d+|\d+|\.\d+)(?:mm|cm|in|pt)?`},
		{Name: "Times", Pattern: `[xX×*]`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
	})

	paperParser = participle.MustBuild[PaperExpr](
		participle.Lexer(exprLexer),
		participle.Elide("Whitespace"),
		participle.CaseInsensitive("Ident"),
	)
	marginParser = participle.MustBuild[MarginExpr](
		participle.Lexer(exprLexer),
		participle.Elide("Whitespace"),
	)
)

// PaperExpr 是纸张表达式的语法树，例如 "A4"、"Letter landscape"、"210x297"、"11in x 17in"。
type PaperExpr struct {
	Pos         lexer.Position `parser:"" json:"-"`
	Name        string         `parser:"(  @Ident" json:"name,omitempty"`
	Width       string         `parser:" | @Number Times" json:"width,omitempty"`
	Height      string         `parser:"   @Number )" json:"height,omitempty"`
	Orientation string         `parser:"@( 'portrait' | 'landscape' )?" json:"orientation,omitempty"`
}

// MarginExpr 是 CSS 风格的页边距：1 个值四边相同，2 个值为 上下/左右，
// 3 个值为 上/左右/下，4 个值为 上/右/下/左。
type MarginExpr struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Values []string       `parser:"@Number+" json:"values"`
}

// pagePresets 以毫米给出纵向尺寸。
var pagePresets = map[string][2]float64{
	"A3":     {297, 420},
	"A4":     {210, 297},
	"A5":     {148, 210},
	"LETTER": {215.9, 279.4},
	"LEGAL":  {215.9, 355.6},
}

// Presets 返回所有内置纸张名。
func Presets() []string {
	return []string{"A3", "A4", "A5", "Letter", "Legal"}
}

// ParsePaper parses a paper expression without resolving it.
func ParsePaper(input string) (*PaperExpr, error) {
	return paperParser.ParseString("", input)
}

// ParseMargins parses a margin expression without resolving it.
func ParseMargins(input string) (*MarginExpr, error) {
	return marginParser.ParseString("", input)
}

// Size 返回纸张宽高（mm），并按方向调整。
func (p *PaperExpr) Size() (float64, float64, error) {
	var w, h float64
	if p.Name != "" {
		preset, ok := pagePresets[strings.ToUpper(p.Name)]
		if !ok {
			return 0, 0, fmt.Errorf("未知纸张 %q（可选 %s）", p.Name, strings.Join(Presets(), ", "))
		}
		w, h = preset[0], preset[1]
	} else {
		var err error
		if w, err = lengthMM(p.Width); err != nil {
			return 0, 0, err
		}
		if h, err = lengthMM(p.Height); err != nil {
			return 0, 0, err
		}
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("纸张尺寸必须为正数: %gx%g", w, h)
	}
	switch strings.ToLower(p.Orientation) {
	case "landscape":
		if w < h {
			w, h = h, w
		}
	case "portrait":
		if w > h {
			w, h = h, w
		}
	}
	return w, h, nil
}

// Margin 按 CSS 简写规则展开为四边页边距（mm）。
func (m *MarginExpr) Margin() (layout.Margin, error) {
	vals := make([]float64, len(m.Values))
	for i, raw := range m.Values {
		v, err := lengthMM(raw)
		if err != nil {
			return layout.Margin{}, err
		}
		vals[i] = v
	}
	switch len(vals) {
	case 1:
		return layout.Margin{Top: vals[0], Right: vals[0], Bottom: vals[0], Left: vals[0]}, nil
	case 2:
		return layout.Margin{Top: vals[0], Right: vals[1], Bottom: vals[0], Left: vals[1]}, nil
	case 3:
		return layout.Margin{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[1]}, nil
	case 4:
		return layout.Margin{Top: vals[0], Right: vals[1], Bottom: vals[2], Left: vals[3]}, nil
	default:
		return layout.Margin{}, fmt.Errorf("页边距需要 1 到 4 个值，实际 %d 个", len(vals))
	}
}

// ResolvePaper 解析纸张表达式并返回宽高（mm）。
func ResolvePaper(input string) (float64, float64, error) {
	expr, err := ParsePaper(input)
	if err != nil {
		return 0, 0, fmt.Errorf("解析纸张 %q 失败: %w", input, err)
	}
	return expr.Size()
}

// ResolveMargins 解析页边距表达式。
func ResolveMargins(input string) (layout.Margin, error) {
	expr, err := ParseMargins(input)
	if err != nil {
		return layout.Margin{}, fmt.Errorf("解析页边距 %q 失败: %w", input, err)
	}
	return expr.Margin()
}

func lengthMM(raw string) (float64, error) {
	l, err := layout.ParseLength(raw)
	if err != nil {
		return 0, err
	}
	return l.ToMM(), nil
}
