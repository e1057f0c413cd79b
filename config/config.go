package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ByLCY/codepress/binding"
	"github.com/ByLCY/codepress/dsl"
	"github.com/ByLCY/codepress/layout"
)

// FileName 是源码根目录下默认读取的配置文件名。
const FileName = "codepress.toml"

// DefaultFooter 是默认页脚模板。
const DefaultFooter = "${crate} - Code Review  ${page}/${pages}"

// FooterVars 是页脚模板可以引用的变量。
var FooterVars = []string{"crate", "version", "page", "pages", "files"}

// Config 是一次运行的全部设置，长度类字段保留原始字符串，由 Layout 统一解析。
type Config struct {
	Paper               string   `koanf:"paper"`
	Margins             string   `koanf:"margins"`
	FontSize            float64  `koanf:"font_size"`
	LineHeight          string   `koanf:"line_height"`
	Columns             int      `koanf:"columns"`
	ColumnGap           float64  `koanf:"column_gap"`
	Theme               string   `koanf:"theme"`
	Font                string   `koanf:"font"`
	IncludeTests        bool     `koanf:"include_tests"`
	GutterPadding       float64  `koanf:"gutter_padding"`
	MinLinesAfterHeader int      `koanf:"min_lines_after_header"`
	TitlePage           bool     `koanf:"title_page"`
	Footer              string   `koanf:"footer"`
	Output              string   `koanf:"output"`
	Crates              []string `koanf:"crates"`
	Workers             int      `koanf:"workers"`
}

// Defaults returns the lowest configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"paper":                  "210x297",
		"margins":                "10",
		"font_size":              8.0,
		"line_height":            "1.2x",
		"columns":                2,
		"column_gap":             5.0,
		"theme":                  "github",
		"font":                   "",
		"include_tests":          false,
		"gutter_padding":         2.0,
		"min_lines_after_header": 2,
		"title_page":             true,
		"footer":                 DefaultFooter,
		"output":                 ".",
		"crates":                 []string{},
		"workers":                0,
	}
}

// LoadOptions 描述配置来源。
type LoadOptions struct {
	// SourceRoot 下存在 codepress.toml 时自动加载。
	SourceRoot string
	// File 显式指定配置文件，不存在时报错；优先于 SourceRoot 下的文件。
	File string
	// Overrides 是命令行中显式设置过的选项，键与 TOML 键相同。
	Overrides map[string]any
}

// Load 依次叠加默认值、配置文件与命令行覆盖，然后校验。
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	// 1. defaults
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("加载默认配置失败: %w", err)
	}

	// 2. codepress.toml
	path, err := configPath(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, layout.Wrapf(err, layout.CodeConfiguration, "读取配置文件 %s 失败", path)
		}
	}

	// 3. flags
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("加载命令行参数失败: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, layout.Wrap(err, layout.CodeConfiguration, "配置格式错误")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configPath(opts LoadOptions) (string, error) {
	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return "", layout.Wrapf(err, layout.CodeConfiguration, "配置文件 %s 不可用", opts.File)
		}
		return opts.File, nil
	}
	if opts.SourceRoot == "" {
		return "", nil
	}
	path := filepath.Join(opts.SourceRoot, FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("检查配置文件 %s 失败: %w", path, err)
	}
	return path, nil
}

// normalize 拆分逗号分隔的 crate 名并填充 workers。
func (c *Config) normalize() {
	var crates []string
	for _, item := range c.Crates {
		for _, name := range strings.Split(item, ",") {
			if name = strings.TrimSpace(name); name != "" {
				crates = append(crates, name)
			}
		}
	}
	c.Crates = crates
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	c.Theme = strings.TrimSpace(c.Theme)
	if c.Output == "" {
		c.Output = "."
	}
}

// Validate 检查所有设置；任何错误都是 CONFIGURATION 类，对整次运行致命。
func (c *Config) Validate() error {
	if _, err := c.Layout(); err != nil {
		return err
	}
	if c.MinLinesAfterHeader < 0 {
		return layout.Newf(layout.CodeConfiguration, "min_lines_after_header 不能为负: %d", c.MinLinesAfterHeader)
	}
	allowed := map[string]bool{}
	for _, v := range FooterVars {
		allowed[v] = true
	}
	for _, name := range binding.Names(c.Footer) {
		if !allowed[name] {
			return layout.Newf(layout.CodeConfiguration, "页脚模板引用了未知变量 ${%s}", name).
				WithDetail("allowed", FooterVars)
		}
	}
	return nil
}

// Layout 是解析后的版面参数，交给 layout.Resolve。
type Layout struct {
	Paper         layout.PaperSpec
	Columns       layout.ColumnLayout
	FontSize      layout.Length
	LineHeight    layout.LineHeightSpec
	GutterPadding float64
}

// Layout 解析纸张、页边距与行高字符串。
func (c *Config) Layout() (Layout, error) {
	w, h, err := dsl.ResolvePaper(c.Paper)
	if err != nil {
		return Layout{}, layout.Wrap(err, layout.CodeConfiguration, "paper 无效")
	}
	margin, err := dsl.ResolveMargins(c.Margins)
	if err != nil {
		return Layout{}, layout.Wrap(err, layout.CodeConfiguration, "margins 无效")
	}
	if c.FontSize <= 0 {
		return Layout{}, layout.Newf(layout.CodeConfiguration, "font_size 必须为正数: %g", c.FontSize)
	}
	lh, err := layout.ParseLineHeight(c.LineHeight)
	if err != nil {
		return Layout{}, layout.Wrap(err, layout.CodeConfiguration, "line_height 无效")
	}
	if c.Columns < 1 {
		return Layout{}, layout.Newf(layout.CodeConfiguration, "columns 必须 >= 1，实际 %d", c.Columns)
	}
	if c.ColumnGap < 0 || c.GutterPadding < 0 {
		return Layout{}, layout.New(layout.CodeConfiguration, "column_gap 与 gutter_padding 不能为负")
	}
	return Layout{
		Paper:         layout.PaperSpec{Width: w, Height: h, Margin: margin},
		Columns:       layout.ColumnLayout{Count: c.Columns, Gap: c.ColumnGap},
		FontSize:      layout.Pt(c.FontSize),
		LineHeight:    lh,
		GutterPadding: c.GutterPadding,
	}, nil
}

// Params 是写在标题页上的生成参数。
func (c *Config) Params() []string {
	theme := c.Theme
	if theme == "" {
		theme = "none"
	}
	tests := "excluded"
	if c.IncludeTests {
		tests = "included"
	}
	return []string{
		"",
		"Paper " + c.Paper + ", margins " + c.Margins,
		fmt.Sprintf("%d columns, %gpt, line height %s", c.Columns, c.FontSize, c.LineHeight),
		"Theme " + theme + ", tests " + tests,
	}
}
