package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ByLCY/codepress/config"
	"github.com/ByLCY/codepress/highlight"
	"github.com/ByLCY/codepress/job"
	"github.com/ByLCY/codepress/logging"
	canvasrenderer "github.com/ByLCY/codepress/renderer/canvas"
	"github.com/ByLCY/codepress/source"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "codepress: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	verbosity  int
	configFile string
	debugJSON  bool
	guides     bool
	listThemes bool
}

// configFlags 与 config 中的键一一对应（'-' 换成 '_'），只有显式设置过的才会覆盖配置文件。
var configFlags = map[string]bool{
	"paper": true, "margins": true, "font-size": true, "line-height": true,
	"columns": true, "column-gap": true, "theme": true, "font": true,
	"include-tests": true, "gutter-padding": true, "min-lines-after-header": true,
	"title-page": true, "footer": true, "output": true, "crates": true, "workers": true,
}

func newRootCmd() *cobra.Command {
	var opts cliOptions
	d := config.Defaults()

	cmd := &cobra.Command{
		Use:   "codepress [SOURCE]",
		Short: "把源码树排成带行号的多栏 PDF，每个 crate 一份",
		Args:  cobra.MaximumNArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(opts.verbosity, cmd.ErrOrStderr())
			log.Debug().Str("command", cmd.Name()).Msg("command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.listThemes {
				for _, name := range highlight.Themes() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "none")
				return nil
			}
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return run(cmd, root, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.Flags()
	f.StringP("output", "o", d["output"].(string), "PDF 输出目录")
	f.String("paper", d["paper"].(string), "纸张：A4、Letter、210x297、11in x 17in，可加 landscape")
	f.String("margins", d["margins"].(string), "页边距，CSS 风格 1 到 4 个值，缺省单位 mm")
	f.Float64("font-size", d["font_size"].(float64), "代码字号（pt）")
	f.String("line-height", d["line_height"].(string), "行高：1.2x 为字号倍数，也可写 4mm、10pt")
	f.Int("columns", d["columns"].(int), "每页栏数")
	f.Float64("column-gap", d["column_gap"].(float64), "栏间距（mm）")
	f.String("theme", d["theme"].(string), `高亮主题，"none" 关闭高亮`)
	f.String("font", d["font"].(string), "等宽字体文件路径，缺省使用内置 Go Mono")
	f.Bool("include-tests", d["include_tests"].(bool), "包含测试文件")
	f.Float64("gutter-padding", d["gutter_padding"].(float64), "行号区右侧留白（mm）")
	f.Int("min-lines-after-header", d["min_lines_after_header"].(int), "文件标题后至少同栏放下的代码行数")
	f.Bool("title-page", d["title_page"].(bool), "为每个 crate 生成标题页")
	f.String("footer", d["footer"].(string), "页脚模板，可用 ${crate} ${version} ${page} ${pages} ${files}")
	f.StringSlice("crates", nil, "只处理这些 crate（逗号分隔）")
	f.Int("workers", d["workers"].(int), "并行处理文件的 worker 数，0 表示 CPU 核数")

	f.StringVar(&opts.configFile, "config", "", "配置文件路径（缺省读取 SOURCE/codepress.toml）")
	f.BoolVar(&opts.debugJSON, "debug-json", false, "在 PDF 旁输出布局调试 JSON")
	f.BoolVar(&opts.guides, "guides", false, "绘制栏边框辅助线")
	f.BoolVar(&opts.listThemes, "list-themes", false, "列出可用的高亮主题")
	cmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "日志详细程度（-v info，-vv debug，-vvv trace）")
	return cmd
}

// overrides 收集命令行中显式设置过的配置项。
func overrides(flags *pflag.FlagSet) (map[string]any, error) {
	out := map[string]any{}
	var firstErr error
	flags.Visit(func(f *pflag.Flag) {
		if !configFlags[f.Name] || firstErr != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		var (
			v   any
			err error
		)
		switch f.Value.Type() {
		case "float64":
			v, err = flags.GetFloat64(f.Name)
		case "int":
			v, err = flags.GetInt(f.Name)
		case "bool":
			v, err = flags.GetBool(f.Name)
		case "stringSlice":
			v, err = flags.GetStringSlice(f.Name)
		default:
			v = f.Value.String()
		}
		if err != nil {
			firstErr = fmt.Errorf("读取参数 --%s 失败: %w", f.Name, err)
			return
		}
		out[key] = v
	})
	return out, firstErr
}

// run 串联配置、crate 发现、排版与渲染。
func run(cmd *cobra.Command, root string, opts cliOptions) error {
	logger := logging.Component("cli")
	flagValues, err := overrides(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.LoadOptions{SourceRoot: root, File: opts.configFile, Overrides: flagValues})
	if err != nil {
		return err
	}

	crates, err := source.Discover(root)
	if err != nil {
		return err
	}
	crates, missing := source.Filter(crates, cfg.Crates)
	for _, name := range missing {
		logger.Warn().Str("crate", name).Msg("no crate matches filter")
	}
	if len(crates) == 0 {
		return fmt.Errorf("%s 中没有匹配的 crate", root)
	}
	logger.Info().Int("crates", len(crates)).Str("source", root).Msg("crates discovered")

	hl, fellBack := highlight.New(cfg.Theme)
	if fellBack {
		logger.Warn().Str("theme", cfg.Theme).Str("fallback", highlight.DefaultTheme).Msg("unknown theme")
	}

	r, err := canvasrenderer.NewRendererWithOptions(canvasrenderer.Options{Font: cfg.Font, Guides: opts.guides})
	if err != nil {
		return err
	}
	runner, err := job.New(job.Options{
		Config:      cfg,
		Highlighter: hl,
		Typesetter:  r,
		Writer:      r,
		Font:        r.FamilyName(),
		DebugJSON:   opts.debugJSON,
	})
	if err != nil {
		return err
	}

	summary, err := runner.Run(cmd.Context(), crates)
	for _, res := range summary.Crates {
		fmt.Fprintln(cmd.OutOrStdout(), res.Describe())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "完成：%d 成功，%d 跳过，%d 失败，用时 %s\n",
		summary.Count(job.StatusSuccess), summary.Count(job.StatusSkipped), summary.Count(job.StatusFailed),
		summary.Duration.Round(time.Millisecond))
	return summary.Err()
}
