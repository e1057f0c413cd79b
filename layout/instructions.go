package layout

import (
	"strconv"
	"strings"

	"github.com/ByLCY/codepress/binding"
)

// Op 是绘制指令的种类。
type Op int

const (
	OpBeginPage Op = iota
	OpBeginColumn
	OpPlaceText
	OpEndColumn
	OpEndPage
)

func (o Op) String() string {
	switch o {
	case OpBeginPage:
		return "BeginPage"
	case OpBeginColumn:
		return "BeginColumn"
	case OpPlaceText:
		return "PlaceText"
	case OpEndColumn:
		return "EndColumn"
	case OpEndPage:
		return "EndPage"
	default:
		return "Op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Instruction 是交给文档写出端的一条绝对定位绘制指令（页面坐标，mm，左上角为原点）。
// BeginPage 使用 Width/Height；BeginColumn 使用 X/Y/Width/Height；
// PlaceText 使用 X/Y（行顶部）、Height（行高）、Text、Font、Size（pt）与 Style。
type Instruction struct {
	Op     Op        `json:"op"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	Width  float64   `json:"width,omitempty"`
	Height float64   `json:"height,omitempty"`
	Text   string    `json:"text,omitempty"`
	Font   string    `json:"font,omitempty"`
	Size   float64   `json:"size,omitempty"`
	Style  SpanStyle `json:"style"`
}

// StreamOptions 控制指令流中栏外的附加内容。
type StreamOptions struct {
	Font string
	// Footer 是页脚模板，支持 ${crate} ${version} ${page} ${pages} ${files}；为空则不输出页脚。
	Footer string
}

// Instructions 按阅读顺序把文档展开为扁平的指令流；同样的输入总是得到同样的输出。
func (d *CrateDocument) Instructions(g Geometry, opts StreamOptions) []Instruction {
	font := opts.Font
	if font == "" {
		font = defaultFont
	}
	e := emitter{geom: g, font: font}
	for _, page := range d.Pages {
		e.add(Instruction{Op: OpBeginPage, Width: g.Paper.Width, Height: g.Paper.Height})
		if page.Title {
			e.titleBlock(page)
		} else {
			for _, col := range page.Columns {
				e.column(col)
			}
		}
		if opts.Footer != "" {
			e.footer(d.footerText(opts.Footer, page.Index, len(d.Pages)))
		}
		e.add(Instruction{Op: OpEndPage})
	}
	return e.out
}

func (d *CrateDocument) footerText(tmpl string, index, total int) string {
	return binding.Interpolate(tmpl, map[string]any{
		"crate":   d.Crate.Name,
		"version": d.Crate.Version,
		"page":    index + 1,
		"pages":   total,
		"files":   d.Files,
	})
}

// gutterDigitsWidth 是行号区中数字槽位的宽度，剩余部分即右侧留白。
func gutterDigitsWidth(g Geometry) float64 {
	return g.GutterWidth - g.GutterPadding
}

type emitter struct {
	geom Geometry
	font string
	out  []Instruction
}

func (e *emitter) add(in Instruction) { e.out = append(e.out, in) }

func (e *emitter) text(x, y float64, text string, style SpanStyle) {
	if strings.TrimSpace(text) == "" {
		return
	}
	e.add(Instruction{
		Op: OpPlaceText, X: x, Y: y, Height: e.geom.LineHeight,
		Text: text, Font: e.font, Size: e.geom.FontSize, Style: style,
	})
}

func (e *emitter) column(col Column) {
	g := e.geom
	x, y := g.ColumnOrigin(col.Index)
	e.add(Instruction{Op: OpBeginColumn, X: x, Y: y, Width: g.ColumnWidth, Height: g.ColumnHeight})
	numberRight := x + gutterDigitsWidth(g)
	contentX := x + g.ContentOffset()
	for _, pl := range col.Lines {
		line := pl.Line
		ly := y + pl.Y
		switch line.Kind {
		case LineCode:
			if line.Continuation {
				e.text(numberRight-line.GutterWidth, ly, ContinuationMarker, SpanStyle{Color: ContinuationColor})
			} else if line.Gutter != "" {
				e.text(numberRight-line.GutterWidth, ly, line.Gutter, SpanStyle{Color: GutterColor})
			}
			for _, run := range line.Runs {
				e.text(contentX+run.X, ly, run.Text, run.Style)
			}
		default:
			for _, run := range line.Runs {
				e.text(x+pl.X+run.X, ly, run.Text, run.Style)
			}
		}
	}
	e.add(Instruction{Op: OpEndColumn})
}

func (e *emitter) titleBlock(page Page) {
	g := e.geom
	x, y := g.Paper.Margin.Left, g.Paper.Margin.Top
	e.add(Instruction{Op: OpBeginColumn, X: x, Y: y, Width: g.UsableWidth, Height: g.UsableHeight})
	for _, col := range page.Columns {
		for _, pl := range col.Lines {
			for _, run := range pl.Line.Runs {
				e.text(x+pl.X+run.X, y+pl.Y, run.Text, run.Style)
			}
		}
	}
	e.add(Instruction{Op: OpEndColumn})
}

// footer 放在下边距的垂直中线上；下边距容纳不下一行时不输出。
func (e *emitter) footer(text string) {
	g := e.geom
	m := g.Paper.Margin
	if m.Bottom < g.LineHeight {
		return
	}
	y := g.Paper.Height - m.Bottom + (m.Bottom-g.LineHeight)/2
	e.text(m.Left, y, text, SpanStyle{Color: GutterColor})
}
