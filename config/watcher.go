package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"CineFM/logger"
)

const envFileName = ".env"

func loadEnvFile() error {
	return godotenv.Load(envFileName)
}

// TunablesWatcher 监听 .env 文件变化，热更新预加载参数。
// 只覆盖预加载相关的配置，数据库等连接配置不做热更新。
type TunablesWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(PreloadTunables)
	done     chan struct{}
}

// WatchTunables 启动 .env 监听。文件不存在时返回 nil watcher（不视为错误）。
func WatchTunables(onChange func(PreloadTunables)) (*TunablesWatcher, error) {
	if _, err := os.Stat(envFileName); err != nil {
		return nil, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// 编辑器保存时常用重命名替换，监听所在目录而不是文件本身
	dir := filepath.Dir(envFileName)
	if dir == "" {
		dir = "."
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &TunablesWatcher{
		watcher:  fw,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()

	logger.Info("配置热更新监听已启动", logger.String("file", envFileName))
	return w, nil
}

func (w *TunablesWatcher) loop() {
	// 连续写入事件合并为一次重载
	var reloadTimer *time.Timer
	reloadCh := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != envFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})

		case <-reloadCh:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("配置监听出错", logger.ErrorField(err))
		}
	}
}

func (w *TunablesWatcher) reload() {
	// Overload 使修改过的键覆盖当前进程环境
	if err := godotenv.Overload(envFileName); err != nil {
		logger.Warn("重载 .env 失败", logger.ErrorField(err))
		return
	}

	tunables := loadPreloadTunables()
	logger.Info("预加载参数已热更新",
		logger.Duration("failureCooldown", tunables.FailureCooldown),
		logger.Int("maxAttempts", tunables.MaxAttempts),
		logger.Duration("visibleDebounce", tunables.VisibleDebounce),
		logger.Duration("hiddenGrace", tunables.HiddenGrace))

	if w.onChange != nil {
		w.onChange(tunables)
	}
}

// Close 停止监听
func (w *TunablesWatcher) Close() {
	if w == nil {
		return
	}
	close(w.done)
	w.watcher.Close()
}
