package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureDir_Idempotent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "out")

	if err := EnsureDir(dir); err != nil {
		t.Fatalf("首次创建失败：%v", err)
	}
	// 已存在：不算错误（幂等）。
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("重复创建不应失败：%v", err)
	}
}

func TestEnsureDir_ConflictWithFile(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "out")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	err := EnsureDir(p)
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际 %v", err)
	}
}

func TestWriteFileAtomicReplace_WriteAndOverwrite(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "out")

	if err := WriteFileAtomicReplace(dir, "a.txt", []byte("v1")); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if err := WriteFileAtomicReplace(dir, "a.txt", []byte("v2")); err != nil {
		t.Fatalf("覆盖写失败：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	if string(b) != "v2" {
		t.Fatalf("期望内容 v2，实际 %q", string(b))
	}

	// 不应遗留临时文件。
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("遗留了临时文件：%s", e.Name())
		}
	}
}
