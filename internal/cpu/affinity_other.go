//go:build !linux

package cpu

import "errors"

var errUnsupported = errors.New("cpu pinning is not supported on this platform")

// pin only locks the goroutine to its thread; core pinning needs Linux.
func pin(int) (int, func(), error) {
	return -1, nil, errUnsupported
}
