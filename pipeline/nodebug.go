//go:build !debug

package pipeline

func debugLog(string, ...any) {}
