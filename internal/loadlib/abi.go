package loadlib

// #include <stdint.h>
// #include <stdlib.h>
//
// typedef struct cakelisp_host_api {
//   int32_t     (*token_count)(void* handle);
//   int32_t     (*token_kind)(void* handle, int32_t index);
//   char*       (*token_contents)(void* handle, int32_t index, int32_t* out_len);
//   int32_t     (*match_paren)(void* handle, int32_t index);
//   void        (*append_output_token)(void* handle, int32_t kind, char* contents, int32_t length);
//   void        (*emit_fragment)(void* handle, char* payload, int32_t length, int32_t modifiers);
//   void        (*free_string)(char* s);
// } cakelisp_host_api;
//
// extern int32_t goTokenCount(void* handle);
// extern int32_t goTokenKind(void* handle, int32_t index);
// extern char* goTokenContents(void* handle, int32_t index, int32_t* out_len);
// extern int32_t goMatchParen(void* handle, int32_t index);
// extern void goAppendOutputToken(void* handle, int32_t kind, char* contents, int32_t length);
// extern void goEmitFragment(void* handle, char* payload, int32_t length, int32_t modifiers);
// extern void goFreeString(char* s);
//
// static cakelisp_host_api cakelisp_make_host_api(void) {
//   cakelisp_host_api api;
//   api.token_count = goTokenCount;
//   api.token_kind = goTokenKind;
//   api.token_contents = goTokenContents;
//   api.match_paren = goMatchParen;
//   api.append_output_token = goAppendOutputToken;
//   api.emit_fragment = goEmitFragment;
//   api.free_string = goFreeString;
//   return api;
// }
//
// typedef int32_t (*cakelisp_entry_fn)(const cakelisp_host_api*, void*, int32_t);
// static int32_t cakelisp_call_entry(void* fn, const cakelisp_host_api* api, void* handle, int32_t start) {
//   return ((cakelisp_entry_fn)fn)(api, handle, start);
// }
import "C"

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ardnew/cakelisp/internal/output"
	"github.com/ardnew/cakelisp/internal/token"
)

// HostAPIHeader is the C++ header text declaring the CakelispHostAPI struct
// and the entry-point calling convention every compile-time definition's
// generated source is compiled against. The build driver (internal/build)
// prepends it verbatim to the source it writes, so the struct layout the
// dynamically compiled code dereferences matches, member for member, the
// cakelisp_host_api struct this file's cgo preamble constructs at call
// time: neither side needs to share a name, only the same sequence of
// pointer-sized function-pointer fields.
const HostAPIHeader = `#include <cstdint>

extern "C" {
struct CakelispHostAPI {
	int32_t (*TokenCount)(void* handle);
	int32_t (*TokenKind)(void* handle, int32_t index);
	const char* (*TokenContents)(void* handle, int32_t index, int32_t* outLen);
	int32_t (*MatchParen)(void* handle, int32_t index);
	void (*AppendOutputToken)(void* handle, int32_t kind, const char* contents, int32_t length);
	void (*EmitFragment)(void* handle, const char* payload, int32_t length, int32_t modifiers);
	void (*FreeString)(char* s);
};
}
`

// invocation is the per-call context an EntryFunc reaches, via its opaque
// handle argument, through the exported callbacks below. Exactly one of
// Tokens (a macro's output accumulator) or Out (a generator's destination
// buffer) is set, matching which of CallMacro/CallGenerator created it.
type invocation struct {
	Source *token.Array
	Tokens *[]token.Token
	Out    *output.Buffer
}

var (
	handles   sync.Map // uintptr -> *invocation
	handleSeq uint64
)

func registerInvocation(inv *invocation) uintptr {
	id := uintptr(atomic.AddUint64(&handleSeq, 1))
	handles.Store(id, inv)

	return id
}

func releaseInvocation(id uintptr) {
	handles.Delete(id)
}

func lookupInvocation(h unsafe.Pointer) (*invocation, bool) {
	v, ok := handles.Load(uintptr(h))
	if !ok {
		return nil, false
	}

	return v.(*invocation), true
}

// CallMacro invokes a loaded macro's entry point against src starting at
// start, appending the tokens it produces to out (spec.md §6's macro
// entry-point signature, reached here through the CakelispHostAPI
// callback table rather than a shared C++ object layout).
func CallMacro(fn EntryFunc, src *token.Array, start int, out *[]token.Token) bool {
	id := registerInvocation(&invocation{Source: src, Tokens: out})
	defer releaseInvocation(id)

	api := C.cakelisp_make_host_api()
	result := C.cakelisp_call_entry(unsafe.Pointer(fn), &api, unsafe.Pointer(id), C.int32_t(start))

	return result != 0
}

// CallGenerator invokes a loaded generator's entry point against src
// starting at start, letting it append fragments directly to out (spec.md
// §6's generator entry-point signature).
func CallGenerator(fn EntryFunc, src *token.Array, start int, out *output.Buffer) bool {
	id := registerInvocation(&invocation{Source: src, Out: out})
	defer releaseInvocation(id)

	api := C.cakelisp_make_host_api()
	result := C.cakelisp_call_entry(unsafe.Pointer(fn), &api, unsafe.Pointer(id), C.int32_t(start))

	return result != 0
}

//export goTokenCount
func goTokenCount(handle unsafe.Pointer) C.int32_t {
	inv, ok := lookupInvocation(handle)
	if !ok {
		return 0
	}

	return C.int32_t(inv.Source.Len())
}

//export goTokenKind
func goTokenKind(handle unsafe.Pointer, index C.int32_t) C.int32_t {
	inv, ok := lookupInvocation(handle)
	if !ok {
		return -1
	}

	return C.int32_t(inv.Source.At(int(index)).Kind)
}

//export goTokenContents
func goTokenContents(handle unsafe.Pointer, index C.int32_t, outLen *C.int32_t) *C.char {
	inv, ok := lookupInvocation(handle)
	if !ok {
		if outLen != nil {
			*outLen = 0
		}

		return nil
	}

	contents := inv.Source.At(int(index)).Contents
	if outLen != nil {
		*outLen = C.int32_t(len(contents))
	}

	return C.CString(contents)
}

//export goMatchParen
func goMatchParen(handle unsafe.Pointer, index C.int32_t) C.int32_t {
	inv, ok := lookupInvocation(handle)
	if !ok {
		return -1
	}

	return C.int32_t(inv.Source.MatchParen(int(index)))
}

//export goAppendOutputToken
func goAppendOutputToken(handle unsafe.Pointer, kind C.int32_t, contents *C.char, length C.int32_t) {
	inv, ok := lookupInvocation(handle)
	if !ok || inv.Tokens == nil {
		return
	}

	*inv.Tokens = append(*inv.Tokens, token.Token{
		Kind:     token.Kind(kind),
		Contents: C.GoStringN(contents, length),
	})
}

//export goEmitFragment
func goEmitFragment(handle unsafe.Pointer, payload *C.char, length, modifiers C.int32_t) {
	inv, ok := lookupInvocation(handle)
	if !ok || inv.Out == nil {
		return
	}

	inv.Out.Source.Append(output.Fragment{
		Payload:   C.GoStringN(payload, length),
		Modifiers: output.Modifier(modifiers),
	})
}

//export goFreeString
func goFreeString(s *C.char) {
	C.free(unsafe.Pointer(s))
}
