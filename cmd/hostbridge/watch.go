package main

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
)

// watchConfig reloads path whenever it is written and applies the settings
// that may change while the runtime is live: string conversion and
// auto-attach. The parent directory is watched so editors that replace the
// file are still seen.
func watchConfig(ctx context.Context, path string, b *bridge.Bridge) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reload(ctx, abs, b)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return w, nil
}

func reload(ctx context.Context, path string, b *bridge.Bridge) {
	cfg, err := bridge.LoadConfig(path)
	if err != nil {
		logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		return
	}

	current := b.Config()
	if cfg.ConvertStrings != current.ConvertStrings {
		if err := b.Policy().SetStringConversion(ctx, cfg.ConvertStrings); err != nil {
			logger.Warn("string conversion not applied", zap.Error(err))
		} else {
			logger.Info("string conversion changed", zap.Bool("enabled", cfg.ConvertStrings))
		}
	}
	if cfg.AutoAttach != current.AutoAttach {
		b.SetAutoAttach(cfg.AutoAttach)
		logger.Info("auto-attach changed", zap.Bool("enabled", cfg.AutoAttach))
	}
}
