package layout

import (
	"math"
	"strconv"
)

const (
	// DefaultMinColumnWidth 是单栏允许的最小宽度（mm）。
	DefaultMinColumnWidth = 10.0
	// DefaultInnerPadding 是行号区与代码内容之间的留白（mm）。
	DefaultInnerPadding = 1.0
)

// GeometryInput 汇总纸张、分栏、字号与行号区策略。
type GeometryInput struct {
	Paper      PaperSpec
	Columns    ColumnLayout
	FontSize   Length
	LineHeight LineHeightSpec
	// GutterDigits 是本次要渲染的所有文件中最大行号的位数。
	GutterDigits int
	// DigitAdvance 是一个数字字符的宽度（mm），行号区按 GutterDigits 个等宽槽位计算。
	DigitAdvance  float64
	GutterPadding float64
	InnerPadding  float64
}

// Geometry 是解析后的版面，只读，可在并发的文件任务间共享。
type Geometry struct {
	Paper         PaperSpec `json:"paper"`
	Columns       int       `json:"columns"`
	ColumnGap     float64   `json:"columnGap"`
	UsableWidth   float64   `json:"usableWidth"`
	UsableHeight  float64   `json:"usableHeight"`
	ColumnWidth   float64   `json:"columnWidth"`
	ColumnHeight  float64   `json:"columnHeight"`
	GutterWidth   float64   `json:"gutterWidth"`
	GutterPadding float64   `json:"gutterPadding"`
	InnerPadding  float64   `json:"innerPadding"`
	ContentWidth  float64   `json:"contentWidth"`
	LineHeight    float64   `json:"lineHeight"`
	FontSize      float64   `json:"fontSize"` // pt
}

// Resolve 计算可用区域与每栏内容框；任何非正的宽高都是致命的配置错误。
func Resolve(in GeometryInput) (Geometry, error) {
	p := in.Paper
	m := p.Margin
	if p.Width <= 0 || p.Height <= 0 {
		return Geometry{}, Newf(CodeConfiguration, "纸张尺寸必须为正数: %gx%g", p.Width, p.Height)
	}
	if m.Top < 0 || m.Right < 0 || m.Bottom < 0 || m.Left < 0 {
		return Geometry{}, Newf(CodeConfiguration, "页边距不能为负: %+v", m)
	}
	if in.Columns.Count < 1 {
		return Geometry{}, Newf(CodeConfiguration, "栏数必须 >= 1，实际 %d", in.Columns.Count)
	}
	if in.Columns.Gap < 0 {
		return Geometry{}, Newf(CodeConfiguration, "栏间距不能为负: %g", in.Columns.Gap)
	}

	g := Geometry{
		Paper:        p,
		Columns:      in.Columns.Count,
		ColumnGap:    in.Columns.Gap,
		UsableWidth:  p.Width - m.Left - m.Right,
		UsableHeight: p.Height - m.Top - m.Bottom,
		InnerPadding: in.InnerPadding,
		FontSize:     in.FontSize.ToPT(),
	}
	if g.UsableWidth <= 0 || g.UsableHeight <= 0 {
		return Geometry{}, Newf(CodeConfiguration, "可用区域非正: %gx%g（纸张 %gx%g，边距 %+v）",
			g.UsableWidth, g.UsableHeight, p.Width, p.Height, m)
	}

	n := float64(in.Columns.Count)
	minWidth := in.Columns.MinWidth
	if minWidth <= 0 {
		minWidth = DefaultMinColumnWidth
	}
	if need := n*minWidth + (n-1)*in.Columns.Gap; g.UsableWidth < need {
		return Geometry{}, Newf(CodeConfiguration, "可用宽度 %g 放不下 %d 栏（至少需要 %g）",
			g.UsableWidth, in.Columns.Count, need)
	}
	g.ColumnWidth = (g.UsableWidth - (n-1)*in.Columns.Gap) / n
	g.ColumnHeight = g.UsableHeight

	if g.FontSize <= 0 {
		return Geometry{}, Newf(CodeConfiguration, "字号必须为正数: %s", in.FontSize)
	}
	g.LineHeight = in.LineHeight.Resolve(in.FontSize)
	if g.LineHeight <= 0 {
		return Geometry{}, Newf(CodeConfiguration, "行高必须为正数: %g", g.LineHeight)
	}
	if g.LineHeight > g.ColumnHeight {
		return Geometry{}, Newf(CodeConfiguration, "行高 %g 超过栏高 %g", g.LineHeight, g.ColumnHeight)
	}

	digits := in.GutterDigits
	if digits < 1 {
		digits = 1
	}
	if in.DigitAdvance < 0 || in.GutterPadding < 0 || in.InnerPadding < 0 {
		return Geometry{}, New(CodeConfiguration, "行号区宽度参数不能为负")
	}
	g.GutterPadding = in.GutterPadding
	g.GutterWidth = float64(digits)*in.DigitAdvance + in.GutterPadding
	g.ContentWidth = g.ColumnWidth - g.GutterWidth - g.InnerPadding
	if g.ContentWidth <= 0 || g.ContentWidth < in.DigitAdvance {
		return Geometry{}, Newf(CodeConfiguration, "内容宽度不足: 栏宽 %g，行号区 %g，留白 %g",
			g.ColumnWidth, g.GutterWidth, g.InnerPadding)
	}
	return g, nil
}

// LinesPerColumn 返回一栏能容纳的行数。
func (g Geometry) LinesPerColumn() int {
	if g.LineHeight <= 0 {
		return 0
	}
	return int(math.Floor(g.ColumnHeight/g.LineHeight + epsilon))
}

// ColumnOrigin 返回第 i 栏左上角的页面坐标。
func (g Geometry) ColumnOrigin(i int) (x, y float64) {
	x = g.Paper.Margin.Left + float64(i)*(g.ColumnWidth+g.ColumnGap)
	return x, g.Paper.Margin.Top
}

// ContentOffset 是内容区相对栏左侧的偏移。
func (g Geometry) ContentOffset() float64 { return g.GutterWidth + g.InnerPadding }

// DigitCount returns the number of decimal digits of n (at least 1).
func DigitCount(n int) int {
	if n < 10 {
		return 1
	}
	return len(strconv.Itoa(n))
}
