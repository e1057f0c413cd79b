package highlight

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/text/unicode/norm"

	"github.com/ByLCY/codepress/layout"
)

// DefaultTheme 是未知主题名的回退主题。
const DefaultTheme = "github"

// Highlighter 把文件内容切分为带样式的源码行，主题在构造时固定。
// 实现必须可以被多个 goroutine 同时调用。
type Highlighter interface {
	Highlight(content, language string) ([]layout.SourceLine, error)
}

// New 按主题名返回高亮器：空串或 "none" 返回 Plain；未知主题回退到 DefaultTheme，
// 此时 fellBack 为 true，由调用方决定如何提示。
func New(theme string) (h Highlighter, fellBack bool) {
	name := strings.TrimSpace(theme)
	if name == "" || strings.EqualFold(name, "none") {
		return Plain{}, false
	}
	style, ok := styles.Registry[strings.ToLower(name)]
	if !ok {
		style, fellBack = styles.Get(DefaultTheme), true
	}
	return &Chroma{style: style}, fellBack
}

// Themes 返回所有可用的主题名（不含 "none"）。
func Themes() []string { return styles.Names() }

// LanguageFor 根据文件名猜测语言，无法识别时返回空串。
func LanguageFor(path string) string {
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return ""
	}
	return lexer.Config().Name
}

// Plain 不做任何高亮：每行一个默认样式的 span。
type Plain struct{}

func (Plain) Highlight(content, _ string) ([]layout.SourceLine, error) {
	return PlainLines(content), nil
}

// PlainLines 按 \n 切分（去掉行尾 \r），末尾换行不产生额外的空行；行号从 1 开始连续。
func PlainLines(content string) []layout.SourceLine {
	raw := splitLines(prepare(content))
	lines := make([]layout.SourceLine, len(raw))
	for i, text := range raw {
		lines[i] = layout.SourceLine{Number: i + 1}
		if text != "" {
			lines[i].Spans = []layout.StyleSpan{{Text: text}}
		}
	}
	return lines
}

// Chroma 使用 chroma 的词法分析器与配色方案。
type Chroma struct {
	style *chroma.Style
}

// Theme returns the resolved style name.
func (c *Chroma) Theme() string { return c.style.Name }

// Highlight 对整个文件做词法分析；失败时返回纯文本行与 HighlightFailure 错误，
// 调用方可以直接使用返回的行继续排版。
func (c *Chroma) Highlight(content, language string) (lines []layout.SourceLine, err error) {
	content = prepare(content)
	want := len(splitLines(content))
	defer func() {
		if r := recover(); r != nil {
			lines = PlainLines(content)
			err = layout.Newf(layout.CodeHighlightFailure, "%s 词法分析异常: %v", language, r)
		}
	}()

	lexer := lexerFor(language)
	it, err := lexer.Tokenise(nil, content)
	if err != nil {
		return PlainLines(content), layout.Wrapf(err, layout.CodeHighlightFailure, "%s 词法分析失败", language)
	}
	lines = c.toLines(it.Tokens())
	if len(lines) < want {
		return PlainLines(content), layout.Newf(layout.CodeHighlightFailure,
			"%s 词法分析只产生了 %d 行，应为 %d 行", language, len(lines), want)
	}
	return lines[:want], nil
}

func lexerFor(language string) chroma.Lexer {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

// toLines 在换行处切开 token，同一行内相邻的同样式 token 合并成一个 span。
func (c *Chroma) toLines(tokens []chroma.Token) []layout.SourceLine {
	var lines []layout.SourceLine
	cur := layout.SourceLine{Number: 1}
	push := func(text string, style layout.SpanStyle) {
		if text == "" {
			return
		}
		if n := len(cur.Spans); n > 0 && cur.Spans[n-1].Style == style {
			cur.Spans[n-1].Text += text
			return
		}
		cur.Spans = append(cur.Spans, layout.StyleSpan{Text: text, Style: style})
	}
	for _, tok := range tokens {
		style := c.spanStyle(tok.Type)
		parts := strings.Split(tok.Value, "\n")
		for i, part := range parts {
			if i > 0 {
				lines = append(lines, cur)
				cur = layout.SourceLine{Number: len(lines) + 1}
			}
			push(part, style)
		}
	}
	if len(cur.Spans) > 0 {
		lines = append(lines, cur)
	}
	return lines
}

func (c *Chroma) spanStyle(t chroma.TokenType) layout.SpanStyle {
	entry := c.style.Get(t)
	out := layout.SpanStyle{Color: layout.DefaultColor}
	if entry.Colour.IsSet() {
		out.Color = layout.Color{R: int(entry.Colour.Red()), G: int(entry.Colour.Green()), B: int(entry.Colour.Blue())}
	}
	out.Bold = entry.Bold == chroma.Yes
	out.Italic = entry.Italic == chroma.Yes
	return out
}

// prepare 统一为 NFC 并把 CRLF 换成 LF，使纯文本与高亮两条路径的行数一致。
func prepare(content string) string {
	content = norm.NFC.String(content)
	return strings.ReplaceAll(content, "\r\n", "\n")
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	parts := strings.Split(content, "\n")
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}

// String implements fmt.Stringer for logging.
func (c *Chroma) String() string { return fmt.Sprintf("chroma(%s)", c.style.Name) }

func (Plain) String() string { return "plain" }
