package canvasrenderer

import (
	"bytes"
	"math"
	"testing"

	"github.com/ByLCY/codepress/layout"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func TestMetricsMonospace(t *testing.T) {
	r := newTestRenderer(t)
	m, err := r.Metrics(10)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	want := 10 * layout.PtToMm * 0.6 // Go Mono 的字宽约为 0.6em
	for _, ch := range "aW0_{ " {
		gm, err := m.Measure(ch, layout.SpanStyle{})
		if err != nil {
			t.Fatalf("Measure(%q): %v", ch, err)
		}
		if math.Abs(gm.Advance-want) > want*0.05 {
			t.Fatalf("advance(%q) = %g, want ≈ %g", ch, gm.Advance, want)
		}
		if gm.Ascent <= 0 {
			t.Fatalf("ascent(%q) = %g", ch, gm.Ascent)
		}
	}
}

func TestMetricsScaleWithFontSize(t *testing.T) {
	r := newTestRenderer(t)
	small, _ := r.Metrics(8)
	large, _ := r.Metrics(16)
	a, err := small.Measure('x', layout.SpanStyle{Bold: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := large.Measure('x', layout.SpanStyle{Bold: true})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(b.Advance-2*a.Advance) > 1e-6 {
		t.Fatalf("advance should scale linearly: %g vs %g", a.Advance, b.Advance)
	}
}

func TestMetricsMissingGlyphFallsBack(t *testing.T) {
	r := newTestRenderer(t)
	m, _ := r.Metrics(10)
	gm, err := m.Measure('中', layout.SpanStyle{})
	if !layout.IsCode(err, layout.CodeMetricsUnavailable) {
		t.Fatalf("expected metrics-unavailable error, got %v", err)
	}
	if gm.Advance <= 0 {
		t.Fatalf("fallback advance must be positive, got %g", gm.Advance)
	}
}

func TestMetricsRejectsNonPositiveSize(t *testing.T) {
	r := newTestRenderer(t)
	if _, err := r.Metrics(0); !layout.IsCode(err, layout.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestWriteProducesPDF(t *testing.T) {
	r := newTestRenderer(t)
	style := layout.SpanStyle{Color: layout.Color{R: 215, G: 58, B: 73}, Bold: true}
	var stream []layout.Instruction
	for page := 0; page < 2; page++ {
		stream = append(stream,
			layout.Instruction{Op: layout.OpBeginPage, Width: 210, Height: 297},
			layout.Instruction{Op: layout.OpBeginColumn, X: 10, Y: 10, Width: 92.5, Height: 277},
			layout.Instruction{Op: layout.OpPlaceText, X: 16, Y: 10, Height: 3.4, Text: "fn main() {}", Size: 8, Style: style},
			layout.Instruction{Op: layout.OpEndColumn},
			layout.Instruction{Op: layout.OpEndPage},
		)
	}
	out, err := r.Write(layout.DocumentMeta{Title: "demo", Creator: "codepress"}, stream)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", out[:min(len(out), 16)])
	}
}

func TestWriteWithGuides(t *testing.T) {
	r, err := NewRendererWithOptions(Options{Guides: true})
	if err != nil {
		t.Fatal(err)
	}
	stream := []layout.Instruction{
		{Op: layout.OpBeginPage, Width: 100, Height: 100},
		{Op: layout.OpBeginColumn, X: 5, Y: 5, Width: 90, Height: 90},
		{Op: layout.OpEndColumn},
		{Op: layout.OpEndPage},
	}
	if _, err := r.Write(layout.DocumentMeta{}, stream); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestWriteRejectsMalformedStreams(t *testing.T) {
	r := newTestRenderer(t)
	cases := map[string][]layout.Instruction{
		"empty":            nil,
		"text before page": {{Op: layout.OpPlaceText, Text: "x", Size: 8}},
		"unterminated":     {{Op: layout.OpBeginPage, Width: 10, Height: 10}},
		"nested pages": {
			{Op: layout.OpBeginPage, Width: 10, Height: 10},
			{Op: layout.OpBeginPage, Width: 10, Height: 10},
		},
		"zero size":         {{Op: layout.OpBeginPage}},
		"end without begin": {{Op: layout.OpEndPage}},
	}
	for name, stream := range cases {
		if _, err := r.Write(layout.DocumentMeta{}, stream); !layout.IsCode(err, layout.CodeWriterFailure) {
			t.Fatalf("%s: expected writer failure, got %v", name, err)
		}
	}
}

// TestEndToEndCrateDocument 用真实字体度量走完整条排版链路并写出 PDF。
func TestEndToEndCrateDocument(t *testing.T) {
	r := newTestRenderer(t)
	metrics, err := r.Metrics(8)
	if err != nil {
		t.Fatal(err)
	}
	digit, err := metrics.Measure('0', layout.SpanStyle{})
	if err != nil {
		t.Fatal(err)
	}
	g, err := layout.Resolve(layout.GeometryInput{
		Paper:         layout.PaperSpec{Width: 210, Height: 297, Margin: layout.Margin{Top: 10, Right: 10, Bottom: 10, Left: 10}},
		Columns:       layout.ColumnLayout{Count: 2, Gap: 5},
		FontSize:      layout.Pt(8),
		LineHeight:    layout.LineHeightSpec{Kind: layout.LineHeightFactor, Factor: 1.2},
		GutterDigits:  3,
		DigitAdvance:  digit.Advance,
		GutterPadding: 2,
		InnerPadding:  1,
	})
	if err != nil {
		t.Fatal(err)
	}
	b := layout.NewBreaker(g, metrics)
	a := layout.NewAssembler(layout.CrateInfo{Name: "demo"}, g, layout.AssembleOptions{})
	sec := layout.FileSection{Path: "src/lib.rs", Header: b.BreakHeader("src/lib.rs")}
	for i := 1; i <= 300; i++ {
		src := layout.SourceLine{Number: i, Spans: []layout.StyleSpan{
			{Text: "pub fn ", Style: layout.SpanStyle{Bold: true}},
			{Text: "handler_with_a_rather_long_name_to_force_wrapping(input: &str) -> Result<(), Error>"},
		}}
		sec.Lines = append(sec.Lines, b.Break(src)...)
	}
	if _, err := a.AddSection(sec); err != nil {
		t.Fatal(err)
	}
	doc, err := a.Finish()
	if err != nil {
		t.Fatal(err)
	}
	stream := doc.Instructions(g, layout.StreamOptions{Font: r.FamilyName(), Footer: "${crate}  ${page}/${pages}"})
	out, err := r.Write(doc.Meta, stream)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("empty PDF")
	}
}
