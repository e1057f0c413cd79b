package source

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ByLCY/codepress/highlight"
)

// Category 是文件在 crate 中的角色。
type Category int

const (
	CategorySource Category = iota
	CategoryTest
	CategoryIntegrationTest
	CategoryExample
	CategoryBenchmark
	CategoryBuildScript
	CategoryOther
)

func (c Category) String() string {
	switch c {
	case CategorySource:
		return "source"
	case CategoryTest:
		return "test"
	case CategoryIntegrationTest:
		return "integration-test"
	case CategoryExample:
		return "example"
	case CategoryBenchmark:
		return "benchmark"
	case CategoryBuildScript:
		return "build-script"
	default:
		return "other"
	}
}

// IsTest 报告该类文件是否受 include_tests 开关控制。
func (c Category) IsTest() bool {
	return c == CategoryTest || c == CategoryIntegrationTest
}

// File 是 crate 中的一个待渲染文件。
type File struct {
	Path     string   // 绝对路径
	Rel      string   // 相对 crate 根目录，使用 /
	Category Category
	Module   string // Rust 模块路径，例如 crate::foo::bar
	Language string // 高亮语言名，未知为空
}

// Heading 是文件标题行的文本：相对路径，Rust 文件在后面附上模块路径。
func (f File) Heading() string {
	if f.Module == "" {
		return f.Rel
	}
	return f.Rel + " (" + f.Module + ")"
}

// Read returns the file content.
func (f File) Read() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("读取 %s 失败: %w", f.Rel, err)
	}
	return string(data), nil
}

// Collect 列出 crate 中的文件，按相对路径排序。
// Cargo crate 只收集 .rs 文件，并跳过带有自己 Cargo.toml 的子目录；
// 目录模式收集所有能识别语言的文件。隐藏目录、target 与 node_modules 始终跳过。
func Collect(c Crate) ([]File, error) {
	var files []File
	err := filepath.WalkDir(c.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == c.Path {
				return nil
			}
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			if c.Manifest {
				if _, err := os.Stat(filepath.Join(p, manifestName)); err == nil {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(c.Path, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		lang := highlight.LanguageFor(rel)
		if c.Manifest {
			if path.Ext(rel) != ".rs" {
				return nil
			}
		} else if lang == "" {
			return nil
		}
		files = append(files, File{
			Path:     p,
			Rel:      rel,
			Category: Classify(rel),
			Module:   ModulePath(rel),
			Language: lang,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("遍历 crate %s 失败: %w", c.Name, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// Classify 按相对路径判断文件类别。
func Classify(rel string) Category {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	name := parts[len(parts)-1]

	if len(parts) == 1 && name == "build.rs" {
		return CategoryBuildScript
	}
	if strings.HasSuffix(name, "_test.go") {
		return CategoryTest
	}
	switch parts[0] {
	case "src":
		for _, p := range parts[1:] {
			if p == "tests" || p == "tests.rs" {
				return CategoryTest
			}
		}
		return CategorySource
	case "tests":
		return CategoryIntegrationTest
	case "examples":
		return CategoryExample
	case "benches":
		return CategoryBenchmark
	}
	if len(parts) == 1 {
		return CategorySource
	}
	return CategoryOther
}

// ModulePath 返回 .rs 文件的模块路径；lib.rs、main.rs 与 mod.rs 折叠到上一级。
// 非 Rust 文件返回空串。
func ModulePath(rel string) string {
	rel = filepath.ToSlash(rel)
	if path.Ext(rel) != ".rs" {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(rel, ".rs"), "/")
	if parts[0] == "src" {
		parts = parts[1:]
	}
	segments := []string{"crate"}
	for _, p := range parts {
		if p == "lib" || p == "main" || p == "mod" {
			continue
		}
		segments = append(segments, p)
	}
	return strings.Join(segments, "::")
}
