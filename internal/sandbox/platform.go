package sandbox

import "runtime"

// isAppleSiliconMacOS reports whether the host is macOS on arm64, the
// precondition for preferring Apple Container per spec §4.6.
func isAppleSiliconMacOS() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}
