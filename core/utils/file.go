package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const downloadChunkSize = 8192

// FileExists 判断普通文件是否存在
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteAtomic 先写入同目录下的临时文件再 rename，
// 其他请求通过文件存在性判断完成时不会看到写了一半的文件。
func WriteAtomic(dest string, write func(f *os.File) error) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("重命名文件失败: %w", err)
	}
	return nil
}

// WriteFileAtomic 原子写入字节内容
func WriteFileAtomic(dest string, data []byte) error {
	return WriteAtomic(dest, func(w *os.File) error {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("写入文件失败: %w", err)
		}
		return nil
	})
}

// CopyFileAtomic 原子复制本地文件
func CopyFileAtomic(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("打开源文件失败: %w", err)
	}
	defer in.Close()

	return WriteAtomic(dest, func(w *os.File) error {
		if _, err := io.Copy(w, in); err != nil {
			return fmt.Errorf("复制文件失败: %w", err)
		}
		return nil
	})
}

// DownloadFile 分块下载文件到指定路径
func DownloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("创建下载请求失败: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("下载文件失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("下载文件失败，状态码: %d", resp.StatusCode)
	}

	return WriteAtomic(dest, func(w *os.File) error {
		buf := make([]byte, downloadChunkSize)
		if _, err := io.CopyBuffer(w, resp.Body, buf); err != nil {
			return fmt.Errorf("保存文件失败: %w", err)
		}
		return nil
	})
}
