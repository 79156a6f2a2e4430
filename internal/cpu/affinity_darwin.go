//go:build darwin

package cpu

// pin is a no-op: macOS has no API to bind a thread to a core.
func pin(int) error { return nil }
