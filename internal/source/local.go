package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dir 枚举单层本地目录（不递归——输入目录的子目录是非常规条目，由上层跳过）。
type Dir struct {
	Root string
}

// Entries 列出 Root 下的所有直接子条目。
//
// 注意：只做 ReadDir，不读文件内容；Regular 由 DirEntry 的类型位决定
// （目录、符号链接、设备等都算非常规）。
func (d Dir) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := filepath.Clean(d.Root)
	des, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		entries = append(entries, Entry{
			Name:    name,
			Ext:     strings.ToLower(filepath.Ext(name)),
			Locator: filepath.Join(root, name),
			Regular: de.Type().IsRegular(),
		})
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
