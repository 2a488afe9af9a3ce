package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"raysniper/internal/logger"
)

// Watch re-reads the parameter file whenever it changes and hands the exit
// section to apply. Only exit parameters are hot-swappable; everything else
// requires a restart through the rollout manager. Invalid edits are logged
// and skipped, never applied.
func Watch(ctx context.Context, path string, apply func(ExitConfig)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file, which drops the watch
	// on the inode itself.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}
	go func() {
		defer w.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != abs {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(250 * time.Millisecond)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnf("config watch error: %v", err)
			case <-pending:
				pending = nil
				cfg, err := reload(abs)
				if err != nil {
					logger.Warnf("config reload rejected: %v", err)
					continue
				}
				logger.Infof("exit parameters hot-reloaded from %s", abs)
				apply(cfg.Exit)
			}
		}
	}()
	return nil
}

func reload(abs string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(abs)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
