// Package filesystem 将产物（逐块 JSON、汇总 JSON）写入输出目录。
package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"qagen/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 输出根目录（必需），不存在时自动创建。
	OutputDir string `json:"output_dir"`
	// Atomic: 同目录临时文件 + rename；默认 true，显式 false 时直接截断覆盖。
	Atomic *bool `json:"atomic,omitempty"`
	// PermFile/PermDir: 为 0 时使用 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
}

// FS 实现 contract.Writer。同名产物总是被整体替换。
type FS struct {
	root   string
	atomic bool
	permF  os.FileMode
	permD  os.FileMode
}

// New 创建文件系统 Writer 实现。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("writer: output_dir required: %w", contract.ErrInvalidInput)
	}
	w := &FS{root: opts.OutputDir, atomic: true, permF: opts.PermFile, permD: opts.PermDir}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	if w.permF == 0 {
		w.permF = 0o644
	}
	if w.permD == 0 {
		w.permD = 0o755
	}
	return w, nil
}

var _ contract.Writer = (*FS)(nil)

// Root 返回输出目录。
func (w *FS) Root() string { return w.root }

// Write 将 r 的全部字节写入 OutputDir/id。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.resolve(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.replace(ctx, dest, r)
	}
	return w.truncate(ctx, dest, r)
}

// resolve: 产物名必须是输出目录内的相对路径。
func (w *FS) resolve(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(string(id))
	switch {
	case rel == "." || rel == "" || rel == "..":
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) truncate(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if _, err := io.Copy(bw, ctxReader{ctx: ctx, r: r}); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) replace(ctx context.Context, dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriter(tmp)
	if _, err = io.Copy(bw, ctxReader{ctx: ctx, r: r}); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	// Windows 上 os.Rename 同样以 MOVEFILE_REPLACE_EXISTING 覆盖目标
	if err = os.Rename(tmpPath, dest); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir 尽力持久化目录项；Windows 不支持目录 fsync。
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	if f, err := os.Open(dir); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
}

// ctxReader: 每次 Read 前检查 ctx。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
