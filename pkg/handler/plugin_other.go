//go:build !linux || !amd64

package handler

import "fmt"

// loadPlugin is unavailable outside linux/amd64: Go's plugin package only
// supports that platform combination. Deployments on other platforms rely
// on RegisterBuiltin instead.
func loadPlugin(path string) (Handler, error) {
	return nil, fmt.Errorf("handler: dynamic plugin loading is not supported on this platform (%s)", path)
}
