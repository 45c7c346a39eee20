// Package scripting implements hostmodel.InitHandler with goja, mirroring
// utils/js.GojaJsEngine's split between a cheap syntax-only compile
// (Validate) and actually running the script (Execute), here in a fresh VM
// per call rather than a pooled one. An
// init section's lines are newline-joined into one script body evaluated
// against a VM that exposes the entry's live object as the global "self".
package scripting

import (
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// GojaInitHandler is the hostmodel.InitHandler used by the driver: it
// precompiles every init section once (Validate, called during
// internal/validate's resolution pass, before any object exists) and runs
// the compiled program against a fresh VM per entry once the object is
// live (Execute, called by internal/build's init phase).
type GojaInitHandler struct {
	mu    sync.Mutex
	cache map[string]*goja.Program
}

// NewGojaInitHandler creates an init handler with an empty program cache.
func NewGojaInitHandler() *GojaInitHandler {
	return &GojaInitHandler{cache: make(map[string]*goja.Program)}
}

// Validate compiles lines as a JavaScript program without running it,
// catching syntax errors before any host object is built. container is
// unused here: goja.Compile never touches the runtime, so there is nothing
// to bind it against yet.
func (h *GojaInitHandler) Validate(container any, lines []string) error {
	src := strings.Join(lines, "\n")
	prog, err := goja.Compile("init", src, false)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.cache[src] = prog
	h.mu.Unlock()
	return nil
}

// Execute runs the init section against container: a fresh goja.Runtime is
// created per call (init sections run once each, at build time, so VM
// pooling buys nothing here — unlike utils/js's per-rule-execution reuse),
// with container bound to the "self" global so scripts can write
// `self.PropertyName = value;`. "this" is reserved by JS itself and can't
// be repurposed as a settable global.
func (h *GojaInitHandler) Execute(container any, lines []string, onError func(error)) {
	src := strings.Join(lines, "\n")

	h.mu.Lock()
	prog, cached := h.cache[src]
	h.mu.Unlock()

	vm := goja.New()
	if err := vm.Set("self", container); err != nil {
		onError(err)
		return
	}

	if cached {
		if _, err := vm.RunProgram(prog); err != nil {
			onError(err)
		}
		return
	}
	if _, err := vm.RunString(src); err != nil {
		onError(err)
	}
}

