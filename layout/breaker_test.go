package layout

import (
	"math/rand"
	"strings"
	"testing"
)

// fixedMetrics 是等宽的测试度量：每个字符 advance 相同，missing 中的字符返回回退宽度与错误。
type fixedMetrics struct {
	advance float64
	missing map[rune]bool
}

func (m fixedMetrics) Measure(r rune, style SpanStyle) (GlyphMetrics, error) {
	gm := GlyphMetrics{Advance: m.advance, Ascent: 0.8 * m.advance, Descent: 0.2 * m.advance}
	if m.missing[r] {
		return gm, Newf(CodeMetricsUnavailable, "no glyph for %q", r)
	}
	return gm, nil
}

func testGeometry(contentWidth float64) Geometry {
	return Geometry{
		Columns:      1,
		ColumnWidth:  contentWidth + 6,
		ColumnHeight: 100,
		UsableWidth:  contentWidth + 6,
		UsableHeight: 100,
		GutterWidth:  5,
		InnerPadding: 1,
		ContentWidth: contentWidth,
		LineHeight:   1,
		FontSize:     8,
	}
}

var (
	kw    = SpanStyle{Color: Color{R: 215, G: 58, B: 73}, Bold: true}
	ident = SpanStyle{Color: Color{R: 36, G: 41, B: 46}}
	str   = SpanStyle{Color: Color{R: 3, G: 47, B: 98}, Italic: true}
)

func line(n int, spans ...StyleSpan) SourceLine { return SourceLine{Number: n, Spans: spans} }

func span(text string, style SpanStyle) StyleSpan { return StyleSpan{Text: text, Style: style} }

// mergeRuns 合并相邻同样式的片段，用于比较折行前后的样式序列。
func mergeRuns(spans []StyleSpan) []StyleSpan {
	var out []StyleSpan
	for _, s := range spans {
		if s.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Style == s.Style {
			out[n-1].Text += s.Text
			continue
		}
		out = append(out, s)
	}
	return out
}

func runsOf(lines []VisualLine) []StyleSpan {
	var spans []StyleSpan
	for _, v := range lines {
		for _, r := range v.Runs {
			spans = append(spans, StyleSpan{Text: r.Text, Style: r.Style})
		}
	}
	return spans
}

func assertRoundTrip(t *testing.T, src SourceLine, got []VisualLine) {
	t.Helper()
	want := mergeRuns(NormalizeLine(src).Spans)
	have := mergeRuns(runsOf(got))
	if len(want) != len(have) {
		t.Fatalf("样式片段数量不一致: want=%d got=%d (%q vs %+v)", len(want), len(have), src.Text(), runsOf(got))
	}
	for i := range want {
		if want[i] != have[i] {
			t.Fatalf("片段 %d 不一致: want=%#v got=%#v", i, want[i], have[i])
		}
	}
}

func assertWidthBound(t *testing.T, limit float64, lines []VisualLine) {
	t.Helper()
	for i, v := range lines {
		sum := 0.0
		for _, r := range v.Runs {
			sum += r.Width
		}
		if sum > limit+1e-9 {
			t.Fatalf("第 %d 行宽度 %g 超过内容宽度 %g", i, sum, limit)
		}
		if i > 0 && len(v.Runs) == 0 {
			t.Fatalf("第 %d 行是空续行", i)
		}
	}
}

func TestBreakFitsOnOneLine(t *testing.T) {
	b := NewBreaker(testGeometry(80), fixedMetrics{advance: 1})
	src := line(7, span("fn", kw), span(" ", ident), span("main", ident), span("()", ident))
	got := b.Break(src)
	if len(got) != 1 {
		t.Fatalf("expected 1 visual line, got %d", len(got))
	}
	if got[0].Gutter != "7" || got[0].Number != 7 || got[0].Continuation {
		t.Fatalf("首行应带行号 7: %#v", got[0])
	}
	if got[0].Width != 9 {
		t.Fatalf("width = %g, want 9", got[0].Width)
	}
	if x := got[0].Runs[2].X; x != 3 {
		t.Fatalf("third run x = %g, want 3", x)
	}
	assertRoundTrip(t, src, got)
}

// TestBreakLongIdentifier: 500 个字符的标识符、内容宽度 80 个字符 ⇒ 7 行，最后一行 20 个字符。
func TestBreakLongIdentifier(t *testing.T) {
	b := NewBreaker(testGeometry(80), fixedMetrics{advance: 1})
	src := line(1, span(strings.Repeat("x", 500), ident))
	got := b.Break(src)
	if len(got) != 7 {
		t.Fatalf("expected 7 visual lines, got %d", len(got))
	}
	for i, v := range got[:6] {
		if n := len(v.Text()); n != 80 {
			t.Fatalf("line %d holds %d chars, want 80", i, n)
		}
	}
	if n := len(got[6].Text()); n != 20 {
		t.Fatalf("last line holds %d chars, want 20", n)
	}
	assertWidthBound(t, 80, got)
	assertRoundTrip(t, src, got)
	if s := b.Stats(); s.HardWraps != 1 || s.Wrapped != 1 || s.VisualLines != 7 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestBreakWrapsAtSpanBoundary(t *testing.T) {
	b := NewBreaker(testGeometry(10), fixedMetrics{advance: 1})
	src := line(3, span("let", kw), span(" ", ident), span("value", ident), span(" = ", ident), span(`"abc"`, str))
	got := b.Break(src)
	// "let value" = 9，加上 " = " 超出 10，换行；`" = "abc"` = 8。
	if len(got) != 2 {
		t.Fatalf("expected 2 visual lines, got %d: %+v", len(got), runsOf(got))
	}
	if got[0].Text() != "let value" || got[1].Text() != ` = "abc"` {
		t.Fatalf("unexpected split: %q | %q", got[0].Text(), got[1].Text())
	}
	if !got[1].Continuation || got[1].Gutter != "" {
		t.Fatalf("续行不应带行号: %#v", got[1])
	}
	if got[1].Runs[0].X != 0 {
		t.Fatalf("续行首个片段应从 0 开始，实际 %g", got[1].Runs[0].X)
	}
	assertRoundTrip(t, src, got)
}

func TestBreakHardWrapClosesCurrentLineFirst(t *testing.T) {
	b := NewBreaker(testGeometry(10), fixedMetrics{advance: 1})
	src := line(1, span("a", ident), span(strings.Repeat("z", 25), str), span(";", ident))
	got := b.Break(src)
	want := []string{"a", "zzzzzzzzzz", "zzzzzzzzzz", "zzzzz;"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %+v", len(want), len(got), runsOf(got))
	}
	for i, w := range want {
		if got[i].Text() != w {
			t.Fatalf("line %d = %q, want %q", i, got[i].Text(), w)
		}
	}
	assertWidthBound(t, 10, got)
	assertRoundTrip(t, src, got)
}

func TestBreakEmptyLineKeepsGutter(t *testing.T) {
	b := NewBreaker(testGeometry(80), fixedMetrics{advance: 1})
	for _, src := range []SourceLine{line(42), line(43, span("", ident))} {
		got := b.Break(src)
		if len(got) != 1 {
			t.Fatalf("空行应产生 1 行，实际 %d", len(got))
		}
		if len(got[0].Runs) != 0 || got[0].Gutter == "" {
			t.Fatalf("空行只应包含行号: %#v", got[0])
		}
	}
}

func TestNormalizeTabsKeepStyle(t *testing.T) {
	src := line(1, span("\tx", kw), span("a\x00b\r", str))
	got := NormalizeLine(src)
	if got.Spans[0].Text != "    x" || got.Spans[0].Style != kw {
		t.Fatalf("tab 展开错误: %#v", got.Spans[0])
	}
	if got.Spans[1].Text != "a b " || got.Spans[1].Style != str {
		t.Fatalf("控制字符替换错误: %#v", got.Spans[1])
	}
	b := NewBreaker(testGeometry(80), fixedMetrics{advance: 1})
	if w := b.Break(src)[0].Width; w != 9 {
		t.Fatalf("tab 应按 %d 个空格测量，width=%g", TabWidth, w)
	}
}

func TestBreakCountsMissingGlyphsAndUsesFallback(t *testing.T) {
	b := NewBreaker(testGeometry(80), fixedMetrics{advance: 1, missing: map[rune]bool{'☃': true}})
	got := b.Break(line(1, span("a☃☃b", ident)))
	if got[0].Width != 4 {
		t.Fatalf("回退宽度应继续参与测量，width=%g", got[0].Width)
	}
	if s := b.Stats(); s.MissingGlyphs != 1 {
		t.Fatalf("MissingGlyphs = %d, want 1 (distinct glyph)", s.MissingGlyphs)
	}
}

func TestBreakHeaderUsesFullColumn(t *testing.T) {
	g := testGeometry(20)
	b := NewBreaker(g, fixedMetrics{advance: 1})
	got := b.BreakHeader("src/a/very/long/path/to/module.rs")
	for _, v := range got {
		if v.Kind != LineHeader {
			t.Fatalf("标题行类型错误: %v", v.Kind)
		}
		if v.Width > g.ColumnWidth {
			t.Fatalf("标题行宽度 %g 超过栏宽 %g", v.Width, g.ColumnWidth)
		}
		if !v.Runs[0].Style.Bold {
			t.Fatalf("标题行应加粗")
		}
	}
	if len(got) != 2 {
		t.Fatalf("33 个字符在 26 宽的栏内应折成 2 行，实际 %d", len(got))
	}
}

// TestBreakRandomizedInvariants 用固定种子的随机行检查往返与宽度上限。
func TestBreakRandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	styles := []SpanStyle{kw, ident, str, {}}
	alphabet := []rune("abcdefghij _(){};\t\"xyz0123456789")
	for _, width := range []float64{3, 7.5, 12, 40, 81} {
		for _, adv := range []float64{0.5, 1, 1.7} {
			if adv > width {
				continue
			}
			b := NewBreaker(testGeometry(width), fixedMetrics{advance: adv})
			for n := 1; n <= 200; n++ {
				var spans []StyleSpan
				for k := rng.Intn(8); k > 0; k-- {
					var sb strings.Builder
					for c := rng.Intn(30); c > 0; c-- {
						sb.WriteRune(alphabet[rng.Intn(len(alphabet))])
					}
					spans = append(spans, span(sb.String(), styles[rng.Intn(len(styles))]))
				}
				src := line(n, spans...)
				got := b.Break(src)
				if len(got) == 0 {
					t.Fatalf("Break 返回空结果")
				}
				assertWidthBound(t, width, got)
				assertRoundTrip(t, src, got)
			}
		}
	}
}
