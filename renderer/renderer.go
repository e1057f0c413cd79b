package renderer

import "github.com/ByLCY/codepress/layout"

// Writer 把一个 crate 的绘制指令流写成最终文件（例如 PDF），返回生成的字节。
// 同一个 Writer 可以被多个 crate 依次或并发使用。
type Writer interface {
	Write(meta layout.DocumentMeta, stream []layout.Instruction) ([]byte, error)
}

// Typesetter 为给定字号（pt）提供字形度量，使排版结果与写出的字体一致。
type Typesetter interface {
	Metrics(sizePt float64) (layout.MetricsProvider, error)
}
