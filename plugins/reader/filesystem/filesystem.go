// Package filesystem 从 JSON 文件或 STDIN 读取内容块列表。
package filesystem

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"qagen/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// Path: content_list.json 路径；"-" 表示 STDIN。
	Path string `json:"path"`
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
}

// FileSystem 实现 contract.ContentSource。
type FileSystem struct {
	path    string
	bufSize int
	stdin   io.Reader
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{path: "content_list.json", bufSize: 64 * 1024, stdin: os.Stdin}
	if opts != nil {
		if strings.TrimSpace(opts.Path) != "" {
			r.path = opts.Path
		}
		if opts.BufSize > 0 {
			r.bufSize = opts.BufSize
		}
	}
	return r
}

var _ contract.ContentSource = (*FileSystem)(nil)

// Path 返回输入路径。
func (r *FileSystem) Path() string { return r.path }

// block: Content 为指针，以区分缺失字段与空字符串。
type block struct {
	Content *string `json:"content"`
}

// Load 读取并解析整个列表。文件缺失返回 ErrInputMissing；
// 非数组、元素缺少 content 或类型错误返回 ErrInputMalformed。
func (r *FileSystem) Load(ctx context.Context) ([]contract.ContentBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var src io.Reader
	if r.path == "-" {
		src = r.stdin
	} else {
		f, err := os.Open(r.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", r.path, contract.ErrInputMissing)
			}
			return nil, fmt.Errorf("open %s: %w", r.path, err)
		}
		defer f.Close()
		src = f
	}
	var items []block
	if err := json.NewDecoder(bufio.NewReaderSize(src, r.bufSize)).Decode(&items); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", r.path, err, contract.ErrInputMalformed)
	}
	out := make([]contract.ContentBlock, 0, len(items))
	for i, it := range items {
		if it.Content == nil {
			return nil, fmt.Errorf("%s: item %d has no content: %w", r.path, i+1, contract.ErrInputMalformed)
		}
		out = append(out, contract.ContentBlock{Content: *it.Content})
	}
	return out, nil
}
