package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// maxOverrideFileSize bounds the override file to keep parse cost fixed.
const maxOverrideFileSize = 256 * 1024

// overridePattern is one user-supplied rule in the overrides file.
type overridePattern struct {
	Name    string `koanf:"name"`
	Pattern string `koanf:"pattern"`
}

// overrideFile is the YAML shape of the policy overrides file:
//
//	blocked:
//	  - name: no-prod-deploy
//	    pattern: '(?i)\bdeploy\s+--prod\b'
//	warning:
//	  - name: db-migrate
//	    pattern: '(?i)\bmigrate\b'
type overrideFile struct {
	Blocked []overridePattern `koanf:"blocked"`
	Warning []overridePattern `koanf:"warning"`
}

// LoadOverrides parses the overrides YAML file into rule tables.
func LoadOverrides(path string) (blocked, warning []Rule, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat overrides file: %w", err)
	}
	if info.Size() > maxOverrideFileSize {
		return nil, nil, fmt.Errorf("overrides file exceeds %d bytes", maxOverrideFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read overrides file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, nil, fmt.Errorf("parse overrides file: %w", err)
	}

	var file overrideFile
	if err := k.Unmarshal("", &file); err != nil {
		return nil, nil, fmt.Errorf("unmarshal overrides file: %w", err)
	}

	blocked, err = compileOverrides(file.Blocked)
	if err != nil {
		return nil, nil, fmt.Errorf("blocked overrides: %w", err)
	}
	warning, err = compileOverrides(file.Warning)
	if err != nil {
		return nil, nil, fmt.Errorf("warning overrides: %w", err)
	}
	return blocked, warning, nil
}

func compileOverrides(patterns []overridePattern) ([]Rule, error) {
	rules := make([]Rule, 0, len(patterns))
	for i, p := range patterns {
		if p.Name == "" {
			return nil, fmt.Errorf("pattern[%d] has no name", i)
		}
		if len(p.Pattern) > 500 {
			return nil, fmt.Errorf("pattern %q too long (max 500 chars)", p.Name)
		}
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Name, err)
		}
		rules = append(rules, Rule{Name: p.Name, Pattern: re})
	}
	return rules, nil
}

// WatchOverrides reloads the overrides file into v whenever it changes,
// until ctx is cancelled. A reload failure keeps the previous rules.
func WatchOverrides(ctx context.Context, path string, v *Validator, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors replace the file, which drops the
	// watch if placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				blocked, warning, err := LoadOverrides(path)
				if err != nil {
					logger.Warn("policy overrides reload failed, keeping previous rules",
						zap.String("path", path), zap.Error(err))
					continue
				}
				v.SetOverrides(blocked, warning)
				logger.Info("policy overrides reloaded",
					zap.String("path", path),
					zap.Int("blocked", len(blocked)),
					zap.Int("warning", len(warning)))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("policy overrides watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
