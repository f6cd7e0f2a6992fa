//go:build linux && amd64

package handler

import (
	"fmt"
	"plugin"
)

// loadPlugin opens a Go plugin (`.so`) and looks up its exported
// `Handler` symbol, which must be a value satisfying the Handler
// interface ("dynamically loaded from platform shared-library
// format").
func loadPlugin(path string) (Handler, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin: %w", err)
	}

	sym, err := p.Lookup("Handler")
	if err != nil {
		return nil, fmt.Errorf("lookup Handler symbol: %w", err)
	}

	h, ok := sym.(Handler)
	if !ok {
		return nil, fmt.Errorf("exported Handler symbol does not satisfy handler.Handler")
	}
	return h, nil
}
