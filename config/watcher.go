package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gocrud/ioc/logging"
)

// Watcher 监听根配置中的文件配置源，文件变化时重载配置
type Watcher struct {
	root     *Root
	logger   logging.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher 创建文件监听器
func NewWatcher(root *Root, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{
		root:     root,
		logger:   logger.WithCategory("config"),
		debounce: 100 * time.Millisecond,
	}
}

// SetDebounce 设置变更合并窗口
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start 开始监听。
// 监听文件所在目录，以兼容编辑器先写临时文件再重命名的保存方式。
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return nil
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, source := range w.root.Sources() {
		fs, ok := source.(FileSource)
		if !ok {
			continue
		}
		abs, err := filepath.Abs(fs.File())
		if err != nil {
			return fmt.Errorf("config: watch %s: %w", fs.File(), err)
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	if len(files) == 0 {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: failed to create file watcher: %w", err)
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return fmt.Errorf("config: watch %s: %w", dir, err)
		}
	}

	w.watcher = fw
	w.done = make(chan struct{})
	go w.loop(fw, files, w.done)

	w.logger.Info("配置文件监听已启动", logging.Field{Key: "files", Value: len(files)})
	return nil
}

// Stop 停止监听，可重复调用
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw, done := w.watcher, w.done
	w.watcher, w.done = nil, nil
	w.mu.Unlock()

	if fw == nil {
		return nil
	}
	err := fw.Close()
	<-done
	return err
}

func (w *Watcher) loop(fw *fsnotify.Watcher, files map[string]bool, done chan struct{}) {
	defer close(done)

	var (
		timer *time.Timer
		fire  = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !files[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("配置文件已变化",
				logging.Field{Key: "file", Value: event.Name},
				logging.Field{Key: "op", Value: event.Op.String()})

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := w.root.Reload(); err != nil {
				w.logger.Error("配置重载失败", logging.Field{Key: "error", Value: err})
				continue
			}
			w.logger.Info("配置已重载")

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("文件监听错误", logging.Field{Key: "error", Value: err})
		}
	}
}
