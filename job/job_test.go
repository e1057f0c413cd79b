package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/codepress/config"
	"github.com/ByLCY/codepress/highlight"
	"github.com/ByLCY/codepress/layout"
	"github.com/ByLCY/codepress/source"
)

type fixedMetrics struct{}

func (fixedMetrics) Measure(r rune, _ layout.SpanStyle) (layout.GlyphMetrics, error) {
	m := layout.GlyphMetrics{Advance: 1, Ascent: 2, Descent: 0.5}
	if r == '中' {
		return m, layout.New(layout.CodeMetricsUnavailable, "missing glyph")
	}
	return m, nil
}

type fakeTypesetter struct{ err error }

func (f fakeTypesetter) Metrics(float64) (layout.MetricsProvider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fixedMetrics{}, nil
}

type fakeWriter struct {
	mu      sync.Mutex
	fail    map[string]bool
	streams map[string][]layout.Instruction
}

func newFakeWriter(fail ...string) *fakeWriter {
	w := &fakeWriter{fail: map[string]bool{}, streams: map[string][]layout.Instruction{}}
	for _, name := range fail {
		w.fail[name] = true
	}
	return w
}

func (w *fakeWriter) Write(meta layout.DocumentMeta, stream []layout.Instruction) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail[meta.Title] {
		return nil, errors.New("disk on fire")
	}
	w.streams[meta.Title] = stream
	return []byte("%PDF-fake " + meta.Title), nil
}

type failingHighlighter struct{}

func (failingHighlighter) Highlight(content, _ string) ([]layout.SourceLine, error) {
	return highlight.PlainLines(content), layout.New(layout.CodeHighlightFailure, "lexer exploded")
}

func writeCrate(t *testing.T, name string, files map[string]string) source.Crate {
	t.Helper()
	root := filepath.Join(t.TempDir(), name)
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return source.Crate{Name: name, Version: "0.1.0", Path: root, Manifest: true}
}

func loadConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	all := map[string]any{"output": t.TempDir(), "workers": 3}
	for k, v := range overrides {
		all[k] = v
	}
	cfg, err := config.Load(config.LoadOptions{Overrides: all})
	require.NoError(t, err)
	return cfg
}

func rustFile(lines int) string {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		b.WriteString("let value = compute(")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString(");\n")
	}
	return b.String()
}

func newRunner(t *testing.T, cfg *config.Config, w *fakeWriter, hl highlight.Highlighter) *Runner {
	t.Helper()
	r, err := New(Options{Config: cfg, Highlighter: hl, Typesetter: fakeTypesetter{}, Writer: w, Font: "GoMono"})
	require.NoError(t, err)
	return r
}

func TestRunWritesOnePDFPerCrate(t *testing.T) {
	cfg := loadConfig(t, nil)
	w := newFakeWriter()
	alpha := writeCrate(t, "alpha", map[string]string{
		"Cargo.toml":  "[package]\nname = \"alpha\"\n",
		"src/lib.rs":  rustFile(120),
		"src/util.rs": rustFile(30),
		"tests/it.rs": rustFile(10),
	})
	onlyTests := writeCrate(t, "beta", map[string]string{
		"Cargo.toml":  "[package]\nname = \"beta\"\n",
		"tests/it.rs": rustFile(5),
	})

	summary, err := newRunner(t, cfg, w, highlight.Plain{}).Run(context.Background(), []source.Crate{alpha, onlyTests})
	require.NoError(t, err)
	require.Len(t, summary.Crates, 2)

	a := summary.Crates[0]
	assert.Equal(t, StatusSuccess, a.Status)
	assert.Equal(t, 2, a.Files)
	assert.Equal(t, 1, a.TestsSkipped)
	assert.Greater(t, a.Pages, 1, "title page plus code pages")
	data, err := os.ReadFile(filepath.Join(cfg.Output, "alpha.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake alpha", string(data))

	b := summary.Crates[1]
	assert.Equal(t, StatusSkipped, b.Status)
	assert.True(t, layout.IsCode(b.Err, layout.CodeEmptyCrate))
	assert.NoFileExists(t, filepath.Join(cfg.Output, "beta.pdf"))

	assert.Equal(t, 1, summary.Count(StatusSuccess))
	assert.Equal(t, 1, summary.Count(StatusSkipped))
	assert.NoError(t, summary.Err())
}

func TestRunStreamContainsFooterAndHeaders(t *testing.T) {
	cfg := loadConfig(t, map[string]any{"title_page": false})
	w := newFakeWriter()
	c := writeCrate(t, "demo", map[string]string{"src/main.rs": rustFile(3)})

	_, err := newRunner(t, cfg, w, highlight.Plain{}).Run(context.Background(), []source.Crate{c})
	require.NoError(t, err)

	stream := w.streams["demo"]
	require.NotEmpty(t, stream)
	assert.Equal(t, layout.OpBeginPage, stream[0].Op)
	assert.Equal(t, layout.OpEndPage, stream[len(stream)-1].Op)

	var texts []string
	for _, in := range stream {
		if in.Op == layout.OpPlaceText {
			texts = append(texts, in.Text)
			assert.Equal(t, "GoMono", in.Font)
		}
	}
	assert.Contains(t, texts, "src/main.rs (crate)")
	assert.Contains(t, texts, "demo - Code Review  1/1")
}

func TestRunWriterFailureDoesNotStopOtherCrates(t *testing.T) {
	cfg := loadConfig(t, nil)
	w := newFakeWriter("bad")
	bad := writeCrate(t, "bad", map[string]string{"src/lib.rs": rustFile(4)})
	good := writeCrate(t, "good", map[string]string{"src/lib.rs": rustFile(4)})

	summary, err := newRunner(t, cfg, w, nil).Run(context.Background(), []source.Crate{bad, good})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, summary.Crates[0].Status)
	assert.True(t, layout.IsCode(summary.Crates[0].Err, layout.CodeWriterFailure))
	assert.Equal(t, StatusSuccess, summary.Crates[1].Status)
	assert.FileExists(t, filepath.Join(cfg.Output, "good.pdf"))

	err = summary.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestSummaryErrKeepsEachCrateCode(t *testing.T) {
	cfg := loadConfig(t, nil)
	w := newFakeWriter("bad")
	bad := writeCrate(t, "bad", map[string]string{"src/lib.rs": rustFile(4)})
	gone := source.Crate{Name: "gone", Path: filepath.Join(t.TempDir(), "missing"), Manifest: true}

	summary, err := newRunner(t, cfg, w, nil).Run(context.Background(), []source.Crate{gone, bad})
	require.NoError(t, err)
	require.Len(t, summary.Crates, 2)
	assert.Equal(t, StatusFailed, summary.Crates[0].Status)
	assert.False(t, layout.IsCode(summary.Crates[0].Err, layout.CodeWriterFailure))

	err = summary.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone")
	assert.Contains(t, err.Error(), "bad")
	assert.ErrorIs(t, err, layout.New(layout.CodeWriterFailure, ""))

	only := Summary{Crates: summary.Crates[:1]}
	assert.False(t, layout.IsCode(only.Err(), layout.CodeWriterFailure), "collection failures are not writer failures")
	assert.NoError(t, Summary{Crates: []CrateResult{{Crate: "ok", Status: StatusSuccess}}}.Err())
}

func TestRunReportsWrapStatistics(t *testing.T) {
	cfg := loadConfig(t, map[string]any{"title_page": false})
	w := newFakeWriter()
	c := writeCrate(t, "demo", map[string]string{
		"src/lib.rs": "fn short() {}\n" + strings.Repeat("y", 400) + "\n",
	})

	summary, err := newRunner(t, cfg, w, highlight.Plain{}).Run(context.Background(), []source.Crate{c})
	require.NoError(t, err)
	res := summary.Crates[0]
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.WrappedLines)
	assert.Equal(t, 1, res.HardWraps)
	assert.Zero(t, res.TitleLinesDropped)
}

func TestRunPlainThemeEmitsUnstyledCode(t *testing.T) {
	cfg := loadConfig(t, map[string]any{"title_page": false, "theme": "none"})
	hl, fellBack := highlight.New(cfg.Theme)
	require.False(t, fellBack)
	w := newFakeWriter()
	c := writeCrate(t, "demo", map[string]string{"src/main.rs": rustFile(3)})

	_, err := newRunner(t, cfg, w, hl).Run(context.Background(), []source.Crate{c})
	require.NoError(t, err)

	gutter := layout.SpanStyle{Color: layout.GutterColor}
	header := layout.SpanStyle{Color: layout.HeaderColor, Bold: true}
	var code int
	for _, in := range w.streams["demo"] {
		if in.Op != layout.OpPlaceText {
			continue
		}
		switch in.Text {
		case "src/main.rs (crate)":
			assert.Equal(t, header, in.Style, "header")
		case "demo - Code Review  1/1", "1", "2", "3":
			assert.Equal(t, gutter, in.Style, in.Text)
		default:
			code++
			assert.Equal(t, layout.SpanStyle{}, in.Style, in.Text)
		}
	}
	assert.Positive(t, code)
}

func TestRunHighlightFailureFallsBackToPlainText(t *testing.T) {
	cfg := loadConfig(t, nil)
	w := newFakeWriter()
	c := writeCrate(t, "demo", map[string]string{"src/lib.rs": rustFile(6), "src/b.rs": rustFile(2)})

	summary, err := newRunner(t, cfg, w, failingHighlighter{}).Run(context.Background(), []source.Crate{c})
	require.NoError(t, err)
	res := summary.Crates[0]
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, res.HighlightFallbacks)
}

func TestRunCountsMissingGlyphs(t *testing.T) {
	cfg := loadConfig(t, nil)
	w := newFakeWriter()
	c := writeCrate(t, "demo", map[string]string{"src/lib.rs": "// 中文注释\nfn main() {}\n"})

	summary, err := newRunner(t, cfg, w, highlight.Plain{}).Run(context.Background(), []source.Crate{c})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, summary.Crates[0].Status)
	assert.Equal(t, 1, summary.Crates[0].MissingGlyphs)
}

func TestRunFatalErrors(t *testing.T) {
	c := writeCrate(t, "demo", map[string]string{"src/lib.rs": rustFile(2)})

	t.Run("metrics unavailable", func(t *testing.T) {
		cfg := loadConfig(t, nil)
		r, err := New(Options{Config: cfg, Typesetter: fakeTypesetter{err: errors.New("no font")}, Writer: newFakeWriter()})
		require.NoError(t, err)
		_, err = r.Run(context.Background(), []source.Crate{c})
		require.Error(t, err)
		assert.True(t, layout.IsCode(err, layout.CodeMetricsUnavailable))
	})

	t.Run("geometry does not fit", func(t *testing.T) {
		cfg := loadConfig(t, map[string]any{"paper": "60x60", "margins": "25"})
		_, err := newRunner(t, cfg, newFakeWriter(), nil).Run(context.Background(), []source.Crate{c})
		require.Error(t, err)
		assert.True(t, layout.IsCode(err, layout.CodeConfiguration))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		cfg := loadConfig(t, nil)
		_, err := newRunner(t, cfg, newFakeWriter(), nil).Run(ctx, []source.Crate{c})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 12; i++ {
		files["src/m"+strings.Repeat("x", i)+".rs"] = rustFile(10 + i*7)
	}
	c := writeCrate(t, "demo", files)

	streamFor := func(workers int) []layout.Instruction {
		w := newFakeWriter()
		cfg := loadConfig(t, map[string]any{"workers": workers})
		_, err := newRunner(t, cfg, w, nil).Run(context.Background(), []source.Crate{c})
		require.NoError(t, err)
		return w.streams["demo"]
	}
	serial := streamFor(1)
	parallel := streamFor(8)
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Fatalf("stream depends on worker count (-serial +parallel):\n%s", diff)
	}
}

func TestRunWritesDebugJSON(t *testing.T) {
	cfg := loadConfig(t, nil)
	c := writeCrate(t, "demo", map[string]string{"src/lib.rs": rustFile(2)})
	r, err := New(Options{Config: cfg, Typesetter: fakeTypesetter{}, Writer: newFakeWriter(), DebugJSON: true})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), []source.Crate{c})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(cfg.Output, "demo.layout.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"geometry"`)
	assert.Contains(t, string(data), `"src/lib.rs"`)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Config: &config.Config{}})
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "alpha.pdf", OutputName("alpha"))
	assert.Equal(t, "a_b.pdf", OutputName("a/b"))
	assert.Equal(t, "crate.pdf", OutputName(""))
}
