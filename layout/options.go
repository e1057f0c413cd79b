package layout

// GlyphMetrics 是单个字符在某一样式下的度量（mm）。
type GlyphMetrics struct {
	Advance float64
	Ascent  float64
	Descent float64
}

// MetricsProvider 根据字符与样式返回度量，字号由实现方在构造时固定。
// 对于字体中不存在的字形，实现方必须返回可用的回退宽度，
// 并同时返回 ErrMetricsUnavailable 类错误；调用方继续使用返回的度量。
type MetricsProvider interface {
	Measure(r rune, style SpanStyle) (GlyphMetrics, error)
}

// AssembleOptions 配置文档装配阶段。
type AssembleOptions struct {
	// MinLinesAfterHeader 是文件标题后至少要同栏放下的代码行数，避免标题孤行。
	MinLinesAfterHeader int
	// IncludeTests 为 false 时跳过 IsTest 的文件段。
	IncludeTests bool
	// Font 是写入 PlaceText 的字体族名。
	Font string
}

const (
	defaultMinLinesAfterHeader = 2
	defaultFont                = "GoMono"
)

func (o AssembleOptions) withDefaults() AssembleOptions {
	if o.MinLinesAfterHeader <= 0 {
		o.MinLinesAfterHeader = defaultMinLinesAfterHeader
	}
	if o.Font == "" {
		o.Font = defaultFont
	}
	return o
}
