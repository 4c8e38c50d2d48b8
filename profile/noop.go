//go:build !pprof

package profile

// start returns a no-op profiler when built without the pprof build tag.
func start(mode, path string, quiet bool) interface{ Stop() } {
	return ignore{}
}
