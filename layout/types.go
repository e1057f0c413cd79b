package layout

import "strings"

// 该文件定义排版引擎的数据模型：从源码行、可视行到列、页与整份 crate 文档。
// 所有长度单位均为毫米（mm），字号除外（pt）。

// Color 采用 0-255 的 RGB 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// 预置颜色：默认前景、行号、续行标记与文件标题。
var (
	DefaultColor      = Color{}
	GutterColor       = Color{R: 136, G: 136, B: 136}
	ContinuationColor = Color{R: 187, G: 187, B: 187}
	HeaderColor       = Color{R: 51, G: 51, B: 51}
)

// Margin 以毫米为单位。
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// PaperSpec 描述纸张尺寸与四边页边距。
type PaperSpec struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Margin Margin  `json:"margin"`
}

// ColumnLayout 描述每页的分栏数量与栏间距。
type ColumnLayout struct {
	Count    int     `json:"count"`
	Gap      float64 `json:"gap"`
	MinWidth float64 `json:"minWidth"`
}

// SpanStyle is the (color, bold, italic) triple shared by a run of characters.
// The zero value is the unstyled default.
type SpanStyle struct {
	Color  Color `json:"color"`
	Bold   bool  `json:"bold,omitempty"`
	Italic bool  `json:"italic,omitempty"`
}

// StyleSpan 是高亮器产出的一段同样式文本，产出后不可变。
type StyleSpan struct {
	Text  string    `json:"text"`
	Style SpanStyle `json:"style"`
}

// SourceLine 是一行源码，Number 从 1 开始。
type SourceLine struct {
	Number int         `json:"number"`
	Spans  []StyleSpan `json:"spans"`
}

// Text returns the concatenated span text.
func (l SourceLine) Text() string {
	var b strings.Builder
	for _, s := range l.Spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// LineKind 区分代码行、文件标题行与标题页行。
type LineKind int

const (
	LineCode LineKind = iota
	LineHeader
	LineTitle
)

// GlyphRun 是可视行中的一段同样式文本，X 为相对内容区左侧的偏移。
type GlyphRun struct {
	Text  string    `json:"text"`
	Style SpanStyle `json:"style"`
	X     float64   `json:"x"`
	Width float64   `json:"width"`
}

// VisualLine 是排版后的一行（固定行高）。
// 续行不带行号，Continuation 为 true 时渲染为淡色续行标记。
type VisualLine struct {
	Kind         LineKind   `json:"kind"`
	Number       int        `json:"number,omitempty"`
	Continuation bool       `json:"continuation,omitempty"`
	Gutter       string     `json:"gutter,omitempty"`
	GutterWidth  float64    `json:"gutterWidth,omitempty"`
	Runs         []GlyphRun `json:"runs"`
	Width        float64    `json:"width"`
}

// Text returns the text of all runs, gutter excluded.
func (v VisualLine) Text() string {
	var b strings.Builder
	for _, r := range v.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// PlacedLine 是已落位的可视行，X/Y 为相对栏左上角的偏移（代码行 X 恒为 0）。
type PlacedLine struct {
	X    float64    `json:"x,omitempty"`
	Y    float64    `json:"y"`
	Line VisualLine `json:"line"`
}

// Column 属于唯一的 Page。
type Column struct {
	Index     int          `json:"index"`
	Lines     []PlacedLine `json:"lines"`
	Remaining float64      `json:"remaining"`
}

// Page 保存 N 个独立填充的栏；标题页只有一个整页块。
type Page struct {
	Index   int      `json:"index"`
	Title   bool     `json:"title,omitempty"`
	Columns []Column `json:"columns"`
}

// FileSection 由标题行与该文件的全部可视行组成。
type FileSection struct {
	Path   string       `json:"path"`
	IsTest bool         `json:"isTest,omitempty"`
	Header []VisualLine `json:"header"`
	Lines  []VisualLine `json:"lines"`
}

// CrateInfo 描述一个 crate 的元信息，用于标题页与 PDF 元数据。
type CrateInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// CrateDocument 是一个 crate 的全部页面；Finish 之后不再修改。
type CrateDocument struct {
	Crate CrateInfo    `json:"crate"`
	Pages []Page       `json:"pages"`
	Meta  DocumentMeta `json:"meta"`
	Files int          `json:"files"`
}

// DocumentMeta 保存 PDF 元信息。
type DocumentMeta struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Subject  string   `json:"subject"`
	Creator  string   `json:"creator"`
	Keywords []string `json:"keywords"`
}
