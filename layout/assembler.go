package layout

import (
	"fmt"
	"math"
)

// Assembler 按文件顺序把 FileSection 交给 Pager，累积成一个 CrateDocument。
// Assembler 只在单个 goroutine 中使用：它持有唯一的可变游标。
type Assembler struct {
	geom     Geometry
	opts     AssembleOptions
	pager    Pager
	state    PagerState
	doc      CrateDocument
	flowBase int // 第一张流式页面在 doc.Pages 中的下标（标题页之后）
	flowed   bool
	finished bool
	dropped  int // 标题页放不下而被截掉的行数
}

// NewAssembler 为一个 crate 创建装配器。
func NewAssembler(crate CrateInfo, geom Geometry, opts AssembleOptions) *Assembler {
	return &Assembler{
		geom:  geom,
		opts:  opts.withDefaults(),
		pager: NewPager(geom),
		doc:   CrateDocument{Crate: crate},
	}
}

// AddTitle 生成独立的标题页：整页单块，不走分栏流程，只能在任何文件段之前调用。
// 超过 LinesPerColumn 的行被截掉，数量由 TitleDropped 报告。
func (a *Assembler) AddTitle(lines []VisualLine) error {
	if a.finished {
		return fmt.Errorf("layout: 文档已完成，不能再添加标题页")
	}
	if a.flowed {
		return fmt.Errorf("layout: 标题页必须位于所有文件段之前")
	}
	if len(lines) == 0 {
		return nil
	}
	lh := a.geom.LineHeight
	capacity := a.geom.LinesPerColumn()
	if len(lines) > capacity {
		a.dropped = len(lines) - capacity
		lines = lines[:capacity]
	}
	// 标题块整体放在可用区域的上三分之一处，水平居中。
	top := math.Max((a.geom.UsableHeight-float64(len(lines))*lh)/3, 0)
	col := Column{Index: 0}
	for i, line := range lines {
		col.Lines = append(col.Lines, PlacedLine{
			X:    math.Max((a.geom.UsableWidth-line.Width)/2, 0),
			Y:    top + float64(i)*lh,
			Line: line,
		})
	}
	col.Remaining = a.geom.UsableHeight - (top + float64(len(lines))*lh)
	a.doc.Pages = append(a.doc.Pages, Page{Index: len(a.doc.Pages), Title: true, Columns: []Column{col}})
	a.flowBase = len(a.doc.Pages)
	return nil
}

// TitleDropped 返回 AddTitle 因超出单栏行数而截掉的标题行数。
func (a *Assembler) TitleDropped() int { return a.dropped }

// AddSection 放置一个文件段；IncludeTests 为 false 时跳过测试文件并返回 false。
// 放置标题前检查孤行：标题之后本栏放不下 MinLinesAfterHeader 行（文件更短时按实际行数）就先换栏。
func (a *Assembler) AddSection(sec FileSection) (bool, error) {
	if a.finished {
		return false, fmt.Errorf("layout: 文档已完成，不能再添加文件 %s", sec.Path)
	}
	if sec.IsTest && !a.opts.IncludeTests {
		return false, nil
	}
	a.flowed = true

	if len(sec.Header) > 0 {
		need := len(sec.Header) + min(a.opts.MinLinesAfterHeader, len(sec.Lines))
		if !a.pager.AtColumnStart(a.state) && a.pager.Remaining(a.state) < need {
			a.state = a.pager.Break(a.state)
		}
		for _, line := range sec.Header {
			a.place(line)
		}
	}
	for _, line := range sec.Lines {
		a.place(line)
	}
	a.doc.Files++
	return true, nil
}

func (a *Assembler) place(line VisualLine) {
	var pl Placement
	a.state, pl = a.pager.Place(a.state, line)
	idx := a.flowBase + pl.Page
	for len(a.doc.Pages) <= idx {
		a.doc.Pages = append(a.doc.Pages, a.newPage(len(a.doc.Pages)))
	}
	col := &a.doc.Pages[idx].Columns[pl.Column]
	col.Lines = append(col.Lines, PlacedLine{Y: pl.Y, Line: pl.Line})
}

func (a *Assembler) newPage(index int) Page {
	cols := make([]Column, a.geom.Columns)
	for i := range cols {
		cols[i] = Column{Index: i, Remaining: a.geom.ColumnHeight}
	}
	return Page{Index: index, Columns: cols}
}

// Finish 结束装配并返回不可变的文档；一个文件段都没有时返回 EmptyCrate 错误。
func (a *Assembler) Finish() (*CrateDocument, error) {
	if a.finished {
		return nil, fmt.Errorf("layout: Finish 只能调用一次")
	}
	a.finished = true
	if a.doc.Files == 0 {
		return nil, Newf(CodeEmptyCrate, "crate %s 没有可渲染的文件", a.doc.Crate.Name)
	}
	for p := a.flowBase; p < len(a.doc.Pages); p++ {
		for c := range a.doc.Pages[p].Columns {
			col := &a.doc.Pages[p].Columns[c]
			if n := len(col.Lines); n > 0 {
				col.Remaining = a.geom.ColumnHeight - (col.Lines[n-1].Y + a.geom.LineHeight)
			}
		}
	}
	a.doc.Meta = DocumentMeta{
		Title:    a.doc.Crate.Name,
		Subject:  a.doc.Crate.Name + " - Code Review",
		Creator:  "codepress",
		Keywords: []string{"code review", a.doc.Crate.Name},
	}
	doc := a.doc
	return &doc, nil
}
