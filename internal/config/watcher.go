package config

import (
	"strings"
	"sync"

	"breakbot/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher 监听配置文件变更，目前只热加载日志级别。
// 交易参数需要重启才会生效，运行中改仓位风险太高。
type Watcher struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	logLevel string
}

// Watch starts watching path for changes. Only app.log_level is applied
// live; everything else is logged and ignored until restart.
func Watch(path string, initial *Config) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	w := &Watcher{path: path, v: v, logLevel: initial.App.LogLevel}
	v.OnConfigChange(func(evt fsnotify.Event) {
		w.reload()
	})
	v.WatchConfig()
	return w, nil
}

func (w *Watcher) reload() {
	if err := w.v.ReadInConfig(); err != nil {
		logger.Errorf("config reload failed: %v", err)
		return
	}
	level := strings.TrimSpace(w.v.GetString("app.log_level"))
	if level == "" {
		return
	}
	w.mu.Lock()
	changed := level != w.logLevel
	w.logLevel = level
	w.mu.Unlock()
	if changed {
		logger.SetLevel(level)
		logger.Infof("config: log level switched to %s", level)
	}
}

// LogLevel 返回当前生效的日志级别。
func (w *Watcher) LogLevel() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.logLevel
}
