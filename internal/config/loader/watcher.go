package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ddmbound/internal/config"
	"ddmbound/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Snapshot 是某一时刻生效的配置。
type Snapshot struct {
	Version  int
	LoadedAt time.Time
	Config   *config.Config
}

// ChangeListener 在配置变更时被调用。
type ChangeListener func(Snapshot)

// Watcher 负责加载主配置文件，并在文件变化时热更新。
// 非法的新配置只记录日志，继续沿用上一份有效配置。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewWatcher 读取配置文件并开始监听 FS 事件。
func NewWatcher(path string) (*Watcher, error) {
	w, err := newWatcher(path)
	if err != nil {
		return nil, err
	}
	w.v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		w.notify()
	})
	w.v.WatchConfig()
	return w, nil
}

func newWatcher(path string) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config watcher requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	w := &Watcher{path: path, v: v}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Snapshot 返回当前配置快照（深拷贝）。
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap := w.snapshot
	snap.Config = snap.Config.Clone()
	return snap
}

// Current 返回当前配置的深拷贝。
func (w *Watcher) Current() *config.Config {
	return w.Snapshot().Config
}

// Subscribe 注册监听器。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) notify() {
	snap := w.Snapshot()
	w.mu.RLock()
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("config listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (w *Watcher) reload() error {
	cfg, err := config.Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.snapshot = Snapshot{
		Version:  w.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Config:   cfg,
	}
	version := w.snapshot.Version
	w.mu.Unlock()
	logger.Infof("config v%d loaded from %s (method=%s, window=%d)", version, filepath.Base(w.path), cfg.Optimizer.Method, cfg.Window.Length)
	return nil
}
