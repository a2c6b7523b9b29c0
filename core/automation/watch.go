package automation

import (
	"context"
	"fmt"
	"path/filepath"

	"CoverFM/logger"

	"github.com/fsnotify/fsnotify"
)

// WatchDir 监听 dir 下文件的创建、写入和重命名，名称满足 match 时发出一次唤醒信号。
// 信号通道带 1 个缓冲，合并密集事件。ctx 结束或调用返回的 stop 后监听退出。
func WatchDir(ctx context.Context, dir string, match func(name string) bool) (<-chan struct{}, func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("创建文件监听器失败: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("监听目录失败: %w", err)
	}

	wake := make(chan struct{}, 1)
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer watcher.Close()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if match != nil && !match(filepath.Base(event.Name)) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("文件监听出错", logger.String("dir", dir), logger.ErrorField(err))
			}
		}
	}()

	stop := func() {
		cancel()
		<-done
	}
	return wake, stop, nil
}
