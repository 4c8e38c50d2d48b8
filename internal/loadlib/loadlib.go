// Package loadlib is the dlopen-equivalent dynamic loader the build driver
// uses to load a freshly linked shared library and resolve its entry symbol
// to a callable native function pointer (spec.md §6 "external
// collaborators... the dynamic-loader wrapper").
//
// A compile-time definition's shared library is produced by an external
// C++ compiler invocation (internal/build), not by `go build
// -buildmode=plugin`: it carries no Go runtime metadata, so Go's stdlib
// `plugin` package cannot open it, and a symbol resolved from it is a raw
// native function pointer, not a Go func value any type assertion could
// ever recover. The loader here is a thin cgo wrapper around dlopen/dlsym
// instead, grounded on `_examples/daios-ai-msg/ffi.go`'s `ms_dlopen`/
// `ms_dlsym_clear`/`ms_dlclose` C shims and its Go-side `cDlopen`/
// `cDlsymClear` wrappers, the pack's only real precedent for opening and
// resolving symbols from a dynamically loaded native library in-process.
//
// Because a resolved symbol is just an address, invoking it requires an
// explicit calling convention both sides agree on (see abi.go): the
// generated C++ source includes the same CakelispHostAPI struct layout
// this package builds in its cgo preamble, and the entry point receives a
// pointer to it plus an opaque per-invocation handle rather than direct
// C++ object pointers, so compiled macro/generator code talks back to the
// Go-side Environment/Output/token.Array exclusively through that callback
// table (mirroring ffi.go's cgo.Handle-carried userdata forwarded through a
// C thunk into an `//export`ed Go callback).
package loadlib

// #include <dlfcn.h>
// #include <stdlib.h>
//
// static void* cakelisp_dlopen(const char* path) {
//   return dlopen(path, RTLD_NOW | RTLD_LOCAL);
// }
// static const char* cakelisp_dlerror(void) {
//   return dlerror();
// }
// static void* cakelisp_dlsym(void* handle, const char* name) {
//   dlerror();
//   return dlsym(handle, name);
// }
// static int cakelisp_dlclose(void* handle) {
//   return dlclose(handle);
// }
import "C"

import (
	"fmt"
	"unsafe"
)

// Library is a loaded shared library, kept open for the life of the
// environment (spec.md §9 "unloading is not supported").
type Library struct {
	path   string
	handle unsafe.Pointer
}

// Open loads the shared library at path.
func Open(path string) (*Library, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.cakelisp_dlopen(cpath)
	if handle == nil {
		return nil, fmt.Errorf("loadlib: dlopen %s: %s", path, dlerror())
	}

	return &Library{path: path, handle: handle}, nil
}

// Path returns the filesystem path the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// Close releases the library. Cakelisp never calls this in the normal
// build-and-load flow (spec.md §9 "unloading is not supported"), but it is
// provided for callers, such as tests, that need a defined way to undo an
// Open.
func (l *Library) Close() error {
	if C.cakelisp_dlclose(l.handle) != 0 {
		return fmt.Errorf("loadlib: dlclose %s: %s", l.path, dlerror())
	}

	return nil
}

// EntryFunc is a raw native function pointer resolved from a loaded
// library's entry symbol: the address dlsym handed back, not yet bound to
// any Go type. It is invoked by CallMacro/CallGenerator (abi.go) through
// the shared CakelispHostAPI calling convention, never type-asserted.
type EntryFunc unsafe.Pointer

// Symbol resolves name to the entry point exported by the library.
func (l *Library) Symbol(name string) (EntryFunc, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	sym := C.cakelisp_dlsym(l.handle, cname)
	if sym == nil {
		if errStr := dlerror(); errStr != "" {
			return nil, fmt.Errorf("loadlib: dlsym %s in %s: %s", name, l.path, errStr)
		}
	}

	return EntryFunc(sym), nil
}

func dlerror() string {
	cerr := C.cakelisp_dlerror()
	if cerr == nil {
		return ""
	}

	return C.GoString(cerr)
}
