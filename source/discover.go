package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ByLCY/codepress/layout"
)

const (
	manifestName   = "Cargo.toml"
	defaultVersion = "0.0.0"
)

// Crate 是一个待渲染的单元：Cargo 包，或没有清单时的整个目录。
type Crate struct {
	Name            string
	Version         string
	Description     string
	Path            string // crate 根目录（绝对路径）
	WorkspaceMember bool
	// Manifest 为 false 表示目录模式：没有 Cargo.toml，按文件名识别语言收集文件。
	Manifest bool
}

// Info 转换为排版使用的元信息。
func (c Crate) Info() layout.CrateInfo {
	return layout.CrateInfo{Name: c.Name, Version: c.Version, Description: c.Description}
}

type cargoManifest struct {
	Package   *cargoPackage   `toml:"package"`
	Workspace *cargoWorkspace `toml:"workspace"`
}

// version/description 在工作区中可能写成 { workspace = true }，因此用 any 接收。
type cargoPackage struct {
	Name        string `toml:"name"`
	Version     any    `toml:"version"`
	Description any    `toml:"description"`
}

type cargoWorkspace struct {
	Members []string `toml:"members"`
	Exclude []string `toml:"exclude"`
}

// Discover 发现 root 下的所有 crate，按名字排序并按路径去重。
// 根目录有 Cargo.toml 时按工作区成员（支持 glob 与 exclude）及根包处理；
// 否则递归查找 Cargo.toml；一个都没有时整个目录作为一个 crate。
func Discover(root string) ([]Crate, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("解析源码目录 %s 失败: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("无法访问源码目录: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s 不是目录", abs)
	}

	var crates []Crate
	rootManifest := filepath.Join(abs, manifestName)
	if _, err := os.Stat(rootManifest); err == nil {
		crates, err = discoverFromRoot(abs)
		if err != nil {
			return nil, err
		}
	} else {
		crates, err = discoverRecursive(abs)
		if err != nil {
			return nil, err
		}
		if len(crates) == 0 {
			crates = []Crate{{Name: filepath.Base(abs), Path: abs}}
		}
	}
	return dedupe(crates), nil
}

func discoverFromRoot(root string) ([]Crate, error) {
	m, err := readManifest(filepath.Join(root, manifestName))
	if err != nil {
		return nil, err
	}
	var crates []Crate
	if ws := m.Workspace; ws != nil {
		for _, pattern := range ws.Members {
			members, err := expandMember(root, pattern, ws.Exclude)
			if err != nil {
				return nil, err
			}
			crates = append(crates, members...)
		}
	}
	if m.Package != nil {
		crates = append(crates, crateFrom(root, m.Package))
	}
	return crates, nil
}

// expandMember 展开工作区成员，支持 "crates/*" 之类的 glob。
func expandMember(root, pattern string, exclude []string) ([]Crate, error) {
	matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
	if err != nil {
		return nil, fmt.Errorf("工作区成员模式 %q 无效: %w", pattern, err)
	}
	sort.Strings(matches)
	var crates []Crate
	for _, dir := range matches {
		rel, _ := filepath.Rel(root, dir)
		if excluded(filepath.ToSlash(rel), exclude) {
			continue
		}
		c, ok, err := tryCrate(dir)
		if err != nil {
			return nil, err
		}
		if ok {
			c.WorkspaceMember = true
			crates = append(crates, c)
		}
	}
	return crates, nil
}

func excluded(rel string, exclude []string) bool {
	for _, e := range exclude {
		e = strings.TrimSuffix(filepath.ToSlash(e), "/")
		if e != "" && (rel == e || strings.HasPrefix(rel, e+"/")) {
			return true
		}
	}
	return false
}

func discoverRecursive(root string) ([]Crate, error) {
	var crates []Crate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != manifestName {
			return nil
		}
		c, ok, err := tryCrate(filepath.Dir(path))
		if err != nil {
			return err
		}
		if ok {
			crates = append(crates, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("查找 Cargo.toml 失败: %w", err)
	}
	return crates, nil
}

// tryCrate 读取 dir/Cargo.toml；没有清单或清单中没有 [package] 时返回 ok=false。
func tryCrate(dir string) (Crate, bool, error) {
	path := filepath.Join(dir, manifestName)
	m, err := readManifest(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Crate{}, false, nil
	}
	if err != nil {
		return Crate{}, false, err
	}
	if m.Package == nil {
		return Crate{}, false, nil
	}
	return crateFrom(dir, m.Package), true, nil
}

func readManifest(path string) (*cargoManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", path, err)
	}
	return &m, nil
}

func crateFrom(dir string, p *cargoPackage) Crate {
	c := Crate{
		Name:        p.Name,
		Version:     stringValue(p.Version),
		Description: strings.TrimSpace(stringValue(p.Description)),
		Path:        dir,
		Manifest:    true,
	}
	if c.Name == "" {
		c.Name = filepath.Base(dir)
	}
	if c.Version == "" {
		c.Version = defaultVersion
	}
	return c
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func dedupe(crates []Crate) []Crate {
	sort.SliceStable(crates, func(i, j int) bool { return crates[i].Name < crates[j].Name })
	seen := map[string]bool{}
	out := crates[:0]
	for _, c := range crates {
		if seen[c.Path] {
			continue
		}
		seen[c.Path] = true
		out = append(out, c)
	}
	return out
}

// Filter 只保留名字在 names 中的 crate；names 为空时原样返回。
// 第二个返回值列出没有匹配到任何 crate 的名字。
func Filter(crates []Crate, names []string) ([]Crate, []string) {
	if len(names) == 0 {
		return crates, nil
	}
	want := map[string]bool{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			want[n] = false
		}
	}
	var out []Crate
	for _, c := range crates {
		if _, ok := want[c.Name]; ok {
			want[c.Name] = true
			out = append(out, c)
		}
	}
	var missing []string
	for n, found := range want {
		if !found {
			missing = append(missing, n)
		}
	}
	sort.Strings(missing)
	return out, missing
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "target" || name == "node_modules"
}
