package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ByLCY/codepress/config"
	"github.com/ByLCY/codepress/highlight"
	"github.com/ByLCY/codepress/layout"
	"github.com/ByLCY/codepress/logging"
	"github.com/ByLCY/codepress/renderer"
	"github.com/ByLCY/codepress/source"
)

// Status 是单个 crate 的处理结果。
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// CrateResult 汇总一个 crate 的输出。
type CrateResult struct {
	Crate  string
	Status Status
	Output string // 生成的 PDF 路径，失败或跳过时为空
	Pages  int
	Files  int
	// TestsSkipped 是因 include_tests=false 未渲染的测试文件数。
	TestsSkipped       int
	HighlightFallbacks int
	MissingGlyphs      int
	// WrappedLines 是产生续行的源码行数，HardWraps 是按字符强制折断的次数。
	WrappedLines int
	HardWraps    int
	// TitleLinesDropped 是标题页放不下而被截掉的行数。
	TitleLinesDropped int
	Err               error
}

// Summary 是整次运行的结果，顺序与输入的 crate 顺序一致。
type Summary struct {
	Crates   []CrateResult
	Duration time.Duration
}

// Count returns how many crates ended with the given status.
func (s Summary) Count(st Status) int {
	n := 0
	for _, c := range s.Crates {
		if c.Status == st {
			n++
		}
	}
	return n
}

// Err 在有 crate 失败时返回汇总错误，每个 crate 的错误保留各自的错误码。
func (s Summary) Err() error {
	var errs []error
	for _, c := range s.Crates {
		if c.Status != StatusFailed {
			continue
		}
		if c.Err == nil {
			errs = append(errs, fmt.Errorf("crate %s 生成失败", c.Crate))
			continue
		}
		errs = append(errs, fmt.Errorf("crate %s: %w", c.Crate, c.Err))
	}
	return errors.Join(errs...)
}

// Options 配置 Runner。
type Options struct {
	Config      *config.Config
	Highlighter highlight.Highlighter
	Typesetter  renderer.Typesetter
	Writer      renderer.Writer
	// Font 是写入指令流的字体族名。
	Font string
	// DebugJSON 为 true 时在 PDF 旁边写出 <crate>.layout.json。
	DebugJSON bool
}

// Runner 串联发现、高亮、折行、分页与写出。
type Runner struct {
	cfg       *config.Config
	hl        highlight.Highlighter
	ts        renderer.Typesetter
	writer    renderer.Writer
	font      string
	debugJSON bool
	log       zerolog.Logger
}

// New validates the collaborators and returns a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("job: config 不能为空")
	}
	if opts.Typesetter == nil || opts.Writer == nil {
		return nil, errors.New("job: typesetter 与 writer 不能为空")
	}
	hl := opts.Highlighter
	if hl == nil {
		hl = highlight.Plain{}
	}
	return &Runner{
		cfg:       opts.Config,
		hl:        hl,
		ts:        opts.Typesetter,
		writer:    opts.Writer,
		font:      opts.Font,
		debugJSON: opts.DebugJSON,
		log:       logging.Component("job"),
	}, nil
}

type preparedFile struct {
	file    source.File
	content string
}

type preparedCrate struct {
	crate        source.Crate
	files        []preparedFile
	testsSkipped int
	err          error
}

// Run 处理所有 crate。配置与度量错误对整次运行致命，直接返回；
// 其余错误只影响对应的 crate，记录在 Summary 中。
func (r *Runner) Run(ctx context.Context, crates []source.Crate) (Summary, error) {
	start := time.Now()
	prepared := make([]preparedCrate, len(crates))
	maxLine := 1
	for i, c := range crates {
		prepared[i] = r.prepare(c)
		for _, f := range prepared[i].files {
			if n := len(highlight.PlainLines(f.content)); n > maxLine {
				maxLine = n
			}
		}
	}

	geom, metrics, err := r.geometry(layout.DigitCount(maxLine))
	if err != nil {
		return Summary{}, err
	}
	r.log.Info().
		Float64("columnWidth", geom.ColumnWidth).
		Float64("contentWidth", geom.ContentWidth).
		Int("linesPerColumn", geom.LinesPerColumn()).
		Msg("geometry resolved")

	summary := Summary{Crates: make([]CrateResult, 0, len(crates))}
	for _, p := range prepared {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res := r.renderCrate(ctx, p, geom, metrics)
		r.logResult(res)
		summary.Crates = append(summary.Crates, res)
	}
	summary.Duration = time.Since(start)
	return summary, ctx.Err()
}

// prepare 收集并读取 crate 的文件；不渲染的测试文件在这里就被排除。
func (r *Runner) prepare(c source.Crate) preparedCrate {
	p := preparedCrate{crate: c}
	files, err := source.Collect(c)
	if err != nil {
		p.err = err
		return p
	}
	for _, f := range files {
		if f.Category.IsTest() && !r.cfg.IncludeTests {
			p.testsSkipped++
			continue
		}
		content, err := f.Read()
		if err != nil {
			r.log.Warn().Err(err).Str("crate", c.Name).Str("file", f.Rel).Msg("skipping unreadable file")
			continue
		}
		p.files = append(p.files, preparedFile{file: f, content: content})
	}
	return p
}

// geometry 用实际字体的数字宽度解析版面，整次运行只做一次。
func (r *Runner) geometry(digits int) (layout.Geometry, layout.MetricsProvider, error) {
	l, err := r.cfg.Layout()
	if err != nil {
		return layout.Geometry{}, nil, err
	}
	metrics, err := r.ts.Metrics(l.FontSize.ToPT())
	if err != nil {
		return layout.Geometry{}, nil, layout.Wrapf(err, layout.CodeMetricsUnavailable, "无法获取 %gpt 的字形度量", l.FontSize.ToPT())
	}
	digit, err := metrics.Measure('0', layout.SpanStyle{})
	if err != nil {
		r.log.Warn().Err(err).Msg("digit glyph missing, using fallback advance")
	}
	geom, err := layout.Resolve(layout.GeometryInput{
		Paper:         l.Paper,
		Columns:       l.Columns,
		FontSize:      l.FontSize,
		LineHeight:    l.LineHeight,
		GutterDigits:  digits,
		DigitAdvance:  digit.Advance,
		GutterPadding: l.GutterPadding,
		InnerPadding:  layout.DefaultInnerPadding,
	})
	if err != nil {
		return layout.Geometry{}, nil, err
	}
	return geom, metrics, nil
}

func (r *Runner) renderCrate(ctx context.Context, p preparedCrate, geom layout.Geometry, metrics layout.MetricsProvider) CrateResult {
	res := CrateResult{Crate: p.crate.Name, TestsSkipped: p.testsSkipped}
	if p.err != nil {
		res.Status, res.Err = StatusFailed, p.err
		return res
	}
	logger := r.log.With().Str("crate", p.crate.Name).Logger()
	defer logging.Operation(logger, "render crate")()

	broken, err := r.breakFiles(ctx, p.files, geom, metrics)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}

	asm := layout.NewAssembler(p.crate.Info(), geom, layout.AssembleOptions{
		MinLinesAfterHeader: r.cfg.MinLinesAfterHeader,
		IncludeTests:        r.cfg.IncludeTests,
		Font:                r.font,
	})
	if r.cfg.TitlePage && len(broken) > 0 {
		title := layout.TitleLines(layout.NewBreaker(geom, metrics), p.crate.Info(), len(broken), r.cfg.Params())
		if err := asm.AddTitle(title); err != nil {
			res.Status, res.Err = StatusFailed, err
			return res
		}
		if n := asm.TitleDropped(); n > 0 {
			res.TitleLinesDropped = n
			logger.Warn().Int("dropped", n).Int("capacity", geom.LinesPerColumn()).Msg("title page truncated")
		}
	}
	for _, b := range broken {
		res.HighlightFallbacks += b.fallback
		res.MissingGlyphs += b.stats.MissingGlyphs
		res.WrappedLines += b.stats.Wrapped
		res.HardWraps += b.stats.HardWraps
		if _, err := asm.AddSection(b.section); err != nil {
			res.Status, res.Err = StatusFailed, err
			return res
		}
	}
	doc, err := asm.Finish()
	if err != nil {
		if layout.IsCode(err, layout.CodeEmptyCrate) {
			res.Status, res.Err = StatusSkipped, err
			return res
		}
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.Files, res.Pages = doc.Files, len(doc.Pages)

	out, err := r.write(doc, geom)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.Status, res.Output = StatusSuccess, out
	return res
}

func (r *Runner) write(doc *layout.CrateDocument, geom layout.Geometry) (string, error) {
	stream := doc.Instructions(geom, layout.StreamOptions{Font: r.font, Footer: r.cfg.Footer})
	data, err := r.writer.Write(doc.Meta, stream)
	if err != nil {
		if layout.CodeOf(err) == layout.CodeUnknown {
			err = layout.Wrap(err, layout.CodeWriterFailure, "写出 PDF 失败")
		}
		return "", err
	}
	if err := os.MkdirAll(r.cfg.Output, 0o755); err != nil {
		return "", layout.Wrap(err, layout.CodeWriterFailure, "创建输出目录失败")
	}
	out := filepath.Join(r.cfg.Output, OutputName(doc.Crate.Name))
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", layout.Wrapf(err, layout.CodeWriterFailure, "写入 %s 失败", out)
	}
	if r.debugJSON {
		debugPath := strings.TrimSuffix(out, ".pdf") + ".layout.json"
		if err := layout.WriteDebugJSON(doc, geom, debugPath); err != nil {
			return "", layout.Wrapf(err, layout.CodeWriterFailure, "写入调试 JSON %s 失败", debugPath)
		}
	}
	return out, nil
}

// OutputName 返回 crate 对应的 PDF 文件名，路径分隔符替换为 '_'。
func OutputName(crate string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(crate)
	if name == "" {
		name = "crate"
	}
	return name + ".pdf"
}

func (r *Runner) logResult(res CrateResult) {
	level := zerolog.InfoLevel
	switch res.Status {
	case StatusSkipped:
		level = zerolog.WarnLevel
	case StatusFailed:
		level = zerolog.ErrorLevel
	}
	r.log.WithLevel(level).Err(res.Err).
		Str("crate", res.Crate).
		Str("status", res.Status.String()).
		Int("files", res.Files).
		Int("pages", res.Pages).
		Int("testsSkipped", res.TestsSkipped).
		Int("highlightFallbacks", res.HighlightFallbacks).
		Int("missingGlyphs", res.MissingGlyphs).
		Int("wrappedLines", res.WrappedLines).
		Int("hardWraps", res.HardWraps).
		Int("titleLinesDropped", res.TitleLinesDropped).
		Str("output", res.Output).
		Msg("crate finished")
}

type brokenFile struct {
	section  layout.FileSection
	stats    layout.BreakStats
	fallback int
}

// breakFiles 在有界的 worker 池中并行高亮与折行，结果按文件下标归位，
// 因此组装顺序与 worker 的完成顺序无关。
func (r *Runner) breakFiles(ctx context.Context, files []preparedFile, geom layout.Geometry, metrics layout.MetricsProvider) ([]brokenFile, error) {
	results := make([]brokenFile, len(files))
	size := max(r.cfg.Workers, 1)
	jobs := make(chan int, size*2)

	var wg sync.WaitGroup
	workers := min(size, len(files))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.breakFile(files[i], geom, metrics)
			}
		}()
	}

feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) breakFile(f preparedFile, geom layout.Geometry, metrics layout.MetricsProvider) brokenFile {
	out := brokenFile{}
	lines, err := r.hl.Highlight(f.content, f.file.Language)
	if err != nil {
		// 高亮器失败时仍返回纯文本行
		out.fallback = 1
		r.log.Warn().Err(err).Str("file", f.file.Rel).Msg("highlight failed, rendering plain text")
		if len(lines) == 0 {
			lines = highlight.PlainLines(f.content)
		}
	}

	b := layout.NewBreaker(geom, metrics)
	sec := layout.FileSection{
		Path:   f.file.Rel,
		IsTest: f.file.Category.IsTest(),
		Header: b.BreakHeader(f.file.Heading()),
	}
	for _, line := range lines {
		sec.Lines = append(sec.Lines, b.Break(line)...)
	}
	out.section = sec
	out.stats = b.Stats()
	r.log.Debug().
		Str("file", f.file.Rel).
		Int("sourceLines", out.stats.SourceLines).
		Int("visualLines", out.stats.VisualLines).
		Int("wrapped", out.stats.Wrapped).
		Int("hardWraps", out.stats.HardWraps).
		Int("missingGlyphs", out.stats.MissingGlyphs).
		Msg("file broken")
	return out
}

// Describe 返回一行人类可读的结果，供命令行输出。
func (c CrateResult) Describe() string {
	switch c.Status {
	case StatusSuccess:
		return fmt.Sprintf("%s: %s（%d 个文件，%d 页）", c.Crate, c.Output, c.Files, c.Pages)
	case StatusSkipped:
		return fmt.Sprintf("%s: 已跳过（没有可渲染的文件）", c.Crate)
	default:
		return fmt.Sprintf("%s: 失败: %v", c.Crate, c.Err)
	}
}
