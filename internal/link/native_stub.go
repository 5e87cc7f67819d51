//go:build !linux

package link

import "fmt"

func openNative(cfg Config) (Port, error) {
	return nil, fmt.Errorf("native serial backend not supported on this platform")
}
