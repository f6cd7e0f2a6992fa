package handler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dirlistener/dirlistener/internal/logger"
)

const (
	pluginSuffix   = ".so"
	manifestSuffix = ".manifest.yaml"
)

var (
	builtinMu   sync.Mutex
	builtinMods []*Module
)

// RegisterBuiltin statically links m into every loader scan, for modules
// that ship inside this binary rather than as a `.so` dropped into a
// module directory ("modules are either statically linked,
// dynamically loaded ..., or expressed in an embedded DSL/WebAssembly
// sandbox"). Call from an init() in the package implementing the
// handler.
func RegisterBuiltin(m Module) {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	builtinMods = append(builtinMods, &m)
}

// ScanDirs loads every handler module found across dirs, in order, plus
// any statically-registered builtins. Load errors for individual modules
// are collected rather than aborting the scan: "Load errors are logged;
// partial loads are permitted".
func ScanDirs(dirs []string) ([]*Module, []error) {
	var modules []*Module
	var errs []error

	builtinMu.Lock()
	modules = append(modules, builtinMods...)
	builtinMu.Unlock()

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("handler: scan %s: %w", dir, err))
			continue
		}

		names := make([]string, 0, len(entries))
		for _, de := range entries {
			if !de.IsDir() && strings.HasSuffix(de.Name(), pluginSuffix) {
				names = append(names, de.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			modPath := filepath.Join(dir, name)
			m, err := loadOne(modPath)
			if err != nil {
				errs = append(errs, err)
				logger.Warn("handler: failed to load module", "path", modPath, logger.Err(err))
				continue
			}
			modules = append(modules, m)
		}
	}

	return modules, errs
}

func loadOne(modPath string) (*Module, error) {
	defaultName := strings.TrimSuffix(filepath.Base(modPath), pluginSuffix)
	manifestPath := strings.TrimSuffix(modPath, pluginSuffix) + manifestSuffix

	manifest, err := loadManifestFile(manifestPath, defaultName)
	if err != nil {
		return nil, fmt.Errorf("handler: load manifest for %s: %w", modPath, err)
	}

	impl, err := loadPlugin(modPath)
	if err != nil {
		return nil, fmt.Errorf("handler: load plugin %s: %w", modPath, err)
	}

	return &Module{Manifest: manifest, Impl: impl}, nil
}

func loadManifestFile(path, defaultName string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}

	if m.Name == "" {
		m.Name = defaultName
	}
	if m.Description == "" {
		return Manifest{}, fmt.Errorf("manifest missing required description field")
	}

	return m, nil
}
