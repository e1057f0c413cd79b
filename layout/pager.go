package layout

// PagerState 是分栏分页游标。零值即初始状态：第 0 页第 0 栏，y=0，尚未打开任何页。
type PagerState struct {
	Page   int     `json:"page"`
	Column int     `json:"column"`
	Y      float64 `json:"y"`
	Opened bool    `json:"opened"`
}

// Placement 是一次落位事件：可视行被放在哪一页、哪一栏、栏内哪个 y。
type Placement struct {
	Page   int
	Column int
	Y      float64
	Line   VisualLine
}

// Pager 是纯函数式的状态机：(状态, 可视行) → (新状态, 落位事件)，没有任何渲染副作用。
type Pager struct {
	Columns      int
	ColumnHeight float64
	LineHeight   float64
}

// NewPager 从 Geometry 取栏数、栏高与行高。
func NewPager(g Geometry) Pager {
	return Pager{Columns: g.Columns, ColumnHeight: g.ColumnHeight, LineHeight: g.LineHeight}
}

// Place 放置一行：当前栏放不下时先换栏（栏用尽则换页），y 归零后再放。
func (p Pager) Place(st PagerState, line VisualLine) (PagerState, Placement) {
	if !st.Opened {
		st = PagerState{Page: st.Page, Column: st.Column, Opened: true}
	} else if st.Y+p.LineHeight > p.ColumnHeight+epsilon {
		st = p.Break(st)
	}
	pl := Placement{Page: st.Page, Column: st.Column, Y: st.Y, Line: line}
	st.Y += p.LineHeight
	return st, pl
}

// Break 强制结束当前栏；未打开任何页时不做任何事。
func (p Pager) Break(st PagerState) PagerState {
	if !st.Opened {
		return st
	}
	next := PagerState{Page: st.Page, Column: st.Column + 1, Opened: true}
	if next.Column >= p.Columns {
		next.Page++
		next.Column = 0
	}
	return next
}

// Remaining 返回当前栏还能放下的行数；下一行会落在新栏时返回整栏容量。
func (p Pager) Remaining(st PagerState) int {
	if p.LineHeight <= 0 {
		return 0
	}
	y := st.Y
	if !st.Opened {
		y = 0
	}
	n := 0
	for y+p.LineHeight <= p.ColumnHeight+epsilon {
		y += p.LineHeight
		n++
	}
	return n
}

// AtColumnStart reports whether the next line would be the first of its column.
func (p Pager) AtColumnStart(st PagerState) bool {
	return !st.Opened || st.Y == 0 || p.Remaining(st) == 0
}
