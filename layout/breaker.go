package layout

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	// TabWidth 是制表符展开成的空格数。
	TabWidth = 4
	// ContinuationMarker 在续行的行号区以淡色绘制，续行本身不带行号。
	ContinuationMarker = "»"

	epsilon = 1e-9
)

// BreakStats 统计折行过程，供日志与汇总使用。
type BreakStats struct {
	SourceLines   int
	VisualLines   int
	Wrapped       int // 产生续行的源码行数
	HardWraps     int // 在 span 内部按字符强制折断的次数
	MissingGlyphs int // 使用回退宽度的不同字形数
}

type glyphKey struct {
	r     rune
	style SpanStyle
}

// Breaker 把一行源码拆成若干不超过内容宽度的可视行。
// Breaker 带有字形宽度缓存，不能在多个 goroutine 间共享；每个文件任务各建一个。
type Breaker struct {
	geom     Geometry
	metrics  MetricsProvider
	fallback float64
	cache    map[glyphKey]float64
	stats    BreakStats
}

// NewBreaker 使用只读的 Geometry 与度量后端创建折行器。
func NewBreaker(geom Geometry, metrics MetricsProvider) *Breaker {
	return &Breaker{
		geom:     geom,
		metrics:  metrics,
		fallback: geom.FontSize * PtToMm * 0.6,
		cache:    map[glyphKey]float64{},
	}
}

// Stats returns the counters accumulated so far.
func (b *Breaker) Stats() BreakStats { return b.stats }

// NormalizeLine 把制表符展开为 TabWidth 个空格，其余控制字符替换为一个空格；
// span 的颜色与样式保持不变，空 span 被丢弃。
func NormalizeLine(line SourceLine) SourceLine {
	out := SourceLine{Number: line.Number, Spans: make([]StyleSpan, 0, len(line.Spans))}
	for _, span := range line.Spans {
		text := normalizeText(span.Text)
		if text == "" {
			continue
		}
		out.Spans = append(out.Spans, StyleSpan{Text: text, Style: span.Style})
	}
	return out
}

func normalizeText(s string) string {
	clean := true
	for _, r := range s {
		if unicode.IsControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\t':
			b.WriteString(strings.Repeat(" ", TabWidth))
		case unicode.IsControl(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Break 对一行源码做贪心折行：整段 span 能放下就放，放不下则另起一行；
// 单个 span 独占一行仍放不下时，在 span 内按字符强制折断。
// 返回的第一行带行号，其余为续行；空行也会产生一行（只有行号）。
func (b *Breaker) Break(line SourceLine) []VisualLine {
	norm := NormalizeLine(line)
	rows := b.wrap(norm.Spans, b.geom.ContentWidth)

	gutter := strconv.Itoa(line.Number)
	gutterWidth := b.textWidth(gutter, SpanStyle{})
	markerWidth := b.textWidth(ContinuationMarker, SpanStyle{Color: ContinuationColor})
	out := make([]VisualLine, len(rows))
	for i, row := range rows {
		v := VisualLine{Kind: LineCode, Number: line.Number, Runs: row.runs, Width: row.width}
		if i == 0 {
			v.Gutter = gutter
			v.GutterWidth = gutterWidth
		} else {
			v.Continuation = true
			v.GutterWidth = markerWidth
		}
		out[i] = v
	}

	b.stats.SourceLines++
	b.stats.VisualLines += len(out)
	if len(out) > 1 {
		b.stats.Wrapped++
	}
	return out
}

// BreakHeader 生成文件标题行：加粗、占满整栏宽度（不留行号区），过长时按字符折行。
func (b *Breaker) BreakHeader(path string) []VisualLine {
	style := SpanStyle{Color: HeaderColor, Bold: true}
	return b.breakBlock(LineHeader, []StyleSpan{{Text: path, Style: style}}, b.geom.ColumnWidth)
}

// BreakTitle 生成标题页的一行，宽度为整个可用区域。
func (b *Breaker) BreakTitle(text string, style SpanStyle) []VisualLine {
	return b.breakBlock(LineTitle, []StyleSpan{{Text: text, Style: style}}, b.geom.UsableWidth)
}

func (b *Breaker) breakBlock(kind LineKind, spans []StyleSpan, limit float64) []VisualLine {
	norm := NormalizeLine(SourceLine{Spans: spans})
	rows := b.wrap(norm.Spans, limit)
	out := make([]VisualLine, len(rows))
	for i, row := range rows {
		out[i] = VisualLine{Kind: kind, Continuation: i > 0, Runs: row.runs, Width: row.width}
	}
	return out
}

type row struct {
	runs  []GlyphRun
	width float64
}

// wrap 是折行的核心，返回至少一行；除了输入为空时的那一行，不会产生空行。
func (b *Breaker) wrap(spans []StyleSpan, limit float64) []row {
	var rows []row
	cur := row{}
	place := func(text string, style SpanStyle, w float64) {
		cur.runs = append(cur.runs, GlyphRun{Text: text, Style: style, X: cur.width, Width: w})
		cur.width += w
	}
	closeRow := func() {
		rows = append(rows, cur)
		cur = row{}
	}

	for _, span := range spans {
		w := b.textWidth(span.Text, span.Style)
		if cur.width+w <= limit+epsilon {
			place(span.Text, span.Style, w)
			continue
		}
		if w <= limit+epsilon {
			closeRow()
			place(span.Text, span.Style, w)
			continue
		}

		// span 独占一行也放不下：先结束当前行，再按字符切块。
		if len(cur.runs) > 0 {
			closeRow()
		}
		b.stats.HardWraps++
		var chunk strings.Builder
		chunkWidth := 0.0
		for _, r := range span.Text {
			adv := b.advance(r, span.Style)
			if chunkWidth+adv > limit+epsilon && chunk.Len() > 0 {
				place(chunk.String(), span.Style, chunkWidth)
				closeRow()
				chunk.Reset()
				chunkWidth = 0
			}
			chunk.WriteRune(r)
			chunkWidth += adv
		}
		if chunk.Len() > 0 {
			place(chunk.String(), span.Style, chunkWidth)
		}
	}
	rows = append(rows, cur)
	return rows
}

func (b *Breaker) textWidth(s string, style SpanStyle) float64 {
	w := 0.0
	for _, r := range s {
		w += b.advance(r, style)
	}
	return w
}

func (b *Breaker) advance(r rune, style SpanStyle) float64 {
	key := glyphKey{r: r, style: style}
	if w, ok := b.cache[key]; ok {
		return w
	}
	w := b.fallback
	if b.metrics != nil {
		m, err := b.metrics.Measure(r, style)
		if err != nil {
			b.stats.MissingGlyphs++
		}
		if m.Advance >= 0 && (err == nil || m.Advance > 0) {
			w = m.Advance
		}
	}
	b.cache[key] = w
	return w
}
