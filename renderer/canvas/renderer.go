package canvasrenderer

import (
	"bytes"
	"image/color"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/codepress/fonts"
	"github.com/ByLCY/codepress/layout"
	"github.com/ByLCY/codepress/renderer"
)

const guideStrokeWidth = 0.1

// Renderer 基于 github.com/tdewolff/canvas 测量字形并写出 PDF。
// 字体面在内部缓存；canvas 的字体对象不保证并发安全，所有访问经 mu 串行化。
type Renderer struct {
	mu     sync.Mutex
	set    fonts.Set
	family *canvas.FontFamily
	faces  map[faceKey]*canvas.FontFace
	guides bool
}

var (
	_ renderer.Writer     = (*Renderer)(nil)
	_ renderer.Typesetter = (*Renderer)(nil)
)

type faceKey struct {
	size   float64
	color  layout.Color
	bold   bool
	italic bool
}

// Options configures the canvas renderer.
type Options struct {
	// Font 交给 fonts.Load；为空时使用内置 Go Mono。
	Font string
	// Guides 为每个栏绘制淡色边框，调试排版时使用。
	Guides bool
}

// NewRenderer creates a renderer with the built-in Go Mono family.
func NewRenderer() (*Renderer, error) { return NewRendererWithOptions(Options{}) }

// NewRendererWithOptions 加载字体族的四种样式；字体不可用是配置错误。
func NewRendererWithOptions(opts Options) (*Renderer, error) {
	set, err := fonts.Load(opts.Font)
	if err != nil {
		return nil, layout.Wrap(err, layout.CodeConfiguration, "加载字体失败")
	}
	family := canvas.NewFontFamily(set.Name)
	variants := []struct {
		bold, italic bool
		style        canvas.FontStyle
	}{
		{false, false, canvas.FontRegular},
		{true, false, canvas.FontBold},
		{false, true, canvas.FontItalic},
		{true, true, canvas.FontBold | canvas.FontItalic},
	}
	for _, v := range variants {
		if err := family.LoadFont(set.Style(v.bold, v.italic), 0, v.style); err != nil {
			return nil, layout.Wrapf(err, layout.CodeConfiguration, "解析字体 %s 失败", set.Name)
		}
	}
	return &Renderer{
		set:    set,
		family: family,
		faces:  map[faceKey]*canvas.FontFace{},
		guides: opts.Guides,
	}, nil
}

// FamilyName 是写入 PlaceText 指令的字体族名。
func (r *Renderer) FamilyName() string { return r.set.Name }

// faceLocked 返回（并缓存）指定字号与样式的字体面，调用方必须持有 mu。
func (r *Renderer) faceLocked(sizePt float64, style layout.SpanStyle) *canvas.FontFace {
	key := faceKey{size: sizePt, color: style.Color, bold: style.Bold, italic: style.Italic}
	if face, ok := r.faces[key]; ok {
		return face
	}
	fs := canvas.FontRegular
	if style.Bold {
		fs |= canvas.FontBold
	}
	if style.Italic {
		fs |= canvas.FontItalic
	}
	face := r.family.Face(sizePt, colorFromLayout(style.Color), fs, canvas.FontNormal)
	r.faces[key] = face
	return face
}

// Metrics 实现 renderer.Typesetter：返回固定字号下的度量后端。
func (r *Renderer) Metrics(sizePt float64) (layout.MetricsProvider, error) {
	if sizePt <= 0 {
		return nil, layout.Newf(layout.CodeConfiguration, "字号必须为正数: %g", sizePt)
	}
	return &faceMetrics{r: r, size: sizePt, fallback: sizePt * layout.PtToMm * 0.6}, nil
}

type faceMetrics struct {
	r        *Renderer
	size     float64
	fallback float64
}

// Measure 返回字符宽度（mm）；字体中没有该字形时返回回退宽度与 MetricsUnavailable 错误。
func (m *faceMetrics) Measure(ch rune, style layout.SpanStyle) (layout.GlyphMetrics, error) {
	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	// 颜色不影响度量，按样式共享字体面
	face := m.r.faceLocked(m.size, layout.SpanStyle{Bold: style.Bold, Italic: style.Italic})
	fm := face.Metrics()
	gm := layout.GlyphMetrics{Ascent: fm.Ascent, Descent: fm.Descent}
	if face.Font.GlyphIndex(ch) == 0 {
		gm.Advance = m.fallback
		return gm, layout.Newf(layout.CodeMetricsUnavailable, "字体 %s 缺少字形 %U", m.r.set.Name, ch)
	}
	gm.Advance = face.TextWidth(string(ch))
	return gm, nil
}

// Write 按顺序执行指令流并返回 PDF 字节。指令流结构不合法或 PDF 写出失败都返回 WriterFailure。
func (r *Renderer) Write(meta layout.DocumentMeta, stream []layout.Instruction) ([]byte, error) {
	if len(stream) == 0 {
		return nil, layout.New(layout.CodeWriterFailure, "指令流为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		buf    bytes.Buffer
		writer *pdf.PDF
		c      *canvas.Canvas
		ctx    *canvas.Context
	)
	for i, in := range stream {
		switch in.Op {
		case layout.OpBeginPage:
			if c != nil {
				return nil, layout.Newf(layout.CodeWriterFailure, "指令 #%d: 上一页尚未结束", i)
			}
			if in.Width <= 0 || in.Height <= 0 {
				return nil, layout.Newf(layout.CodeWriterFailure, "指令 #%d: 页面尺寸无效 %gx%g", i, in.Width, in.Height)
			}
			if writer == nil {
				writer = pdf.New(&buf, in.Width, in.Height, nil)
				applyMeta(writer, meta)
			} else {
				writer.NewPage(in.Width, in.Height)
			}
			c = canvas.New(in.Width, in.Height)
			ctx = canvas.NewContext(c)
			ctx.SetCoordSystem(canvas.CartesianIV) // 与排版结果一致，左上角为原点
		case layout.OpBeginColumn:
			if ctx == nil {
				return nil, layout.Newf(layout.CodeWriterFailure, "指令 #%d: 栏不在页面内", i)
			}
			if r.guides {
				drawGuide(ctx, in)
			}
		case layout.OpPlaceText:
			if ctx == nil {
				return nil, layout.Newf(layout.CodeWriterFailure, "指令 #%d: 文本不在页面内", i)
			}
			r.drawText(ctx, in)
		case layout.OpEndColumn:
		case layout.OpEndPage:
			if c == nil {
				return nil, layout.Newf(layout.CodeWriterFailure, "指令 #%d: 没有打开的页面", i)
			}
			c.RenderTo(writer)
			c, ctx = nil, nil
		default:
			return nil, layout.Newf(layout.CodeWriterFailure, "指令 #%d: 未知操作 %s", i, in.Op)
		}
	}
	if c != nil {
		return nil, layout.New(layout.CodeWriterFailure, "最后一页没有 EndPage")
	}
	if writer == nil {
		return nil, layout.New(layout.CodeWriterFailure, "缺少可渲染的页面")
	}
	if err := writer.Close(); err != nil {
		return nil, layout.Wrap(err, layout.CodeWriterFailure, "写入 PDF 失败")
	}
	return buf.Bytes(), nil
}

// drawText 把文本放在行框内垂直居中：行顶部 + 上下留白 + 上升部即为基线。
func (r *Renderer) drawText(ctx *canvas.Context, in layout.Instruction) {
	face := r.faceLocked(in.Size, in.Style)
	fm := face.Metrics()
	baseline := in.Y + fm.Ascent
	if in.Height > 0 {
		baseline = in.Y + (in.Height-(fm.Ascent+fm.Descent))/2 + fm.Ascent
	}
	ctx.DrawText(in.X, baseline, canvas.NewTextLine(face, in.Text, canvas.Left))
}

func drawGuide(ctx *canvas.Context, in layout.Instruction) {
	ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
	ctx.SetStrokeColor(colorFromLayout(layout.ContinuationColor))
	ctx.SetStrokeWidth(guideStrokeWidth)
	ctx.DrawPath(in.X, in.Y, canvas.Rectangle(in.Width, in.Height))
}

func applyMeta(writer *pdf.PDF, meta layout.DocumentMeta) {
	keywords := strings.Join(meta.Keywords, ", ")
	writer.SetInfo(meta.Title, meta.Subject, keywords, meta.Author, meta.Creator)
}

func colorFromLayout(c layout.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, 1.0)
}
