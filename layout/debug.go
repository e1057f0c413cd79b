package layout

import (
	"encoding/json"
	"os"
)

// debugDump 是调试 JSON 的顶层结构：版面参数加上完整的页面结构。
type debugDump struct {
	Geometry Geometry       `json:"geometry"`
	Document *CrateDocument `json:"document"`
}

// WriteDebugJSON 将 crate 文档与版面输出为 JSON，便于调试或可视化。
func WriteDebugJSON(doc *CrateDocument, g Geometry, path string) error {
	if doc == nil {
		return nil
	}
	data, err := json.MarshalIndent(debugDump{Geometry: g, Document: doc}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
