package eval

// Options configures optional evaluator behavior carried over from the
// original cakelisp implementation (see SPEC_FULL.md §3 "Supplemented
// Features").
type Options struct {
	// HotReload, when true, wraps emission of a symbol known to name a
	// module state variable in a dereference of its pointer form, so the
	// variable's storage can be swapped out from under a running process
	// (spec.md §4.1).
	HotReload bool
	// Trace logs every macro expansion at log.LevelTrace, the Go-side
	// equivalent of the original's --verbose-macro-expansion flag.
	Trace bool
	// ModuleStateVars names the symbols HotReload treats as module state
	// variables requiring pointer dereference on read.
	ModuleStateVars map[string]bool
}

// IsModuleStateVar reports whether name was registered as a hot-reloadable
// module state variable.
func (o Options) IsModuleStateVar(name string) bool {
	return o.HotReload && o.ModuleStateVars[name]
}
