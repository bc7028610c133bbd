package execengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"plugin"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// InprocPlugin is the symbol a host-native extension exports: a package
// var named "Execute" with this signature.
type InprocPlugin func(args map[string]any, ctx map[string]any) (map[string]any, error)

// executeInproc dispatches a "python_inproc" action (spec §4.3 REDESIGN
// FLAGS §255): rather than dynamically loading CPython source into the
// host process — which has no Go equivalent and nothing to sandbox against
// crashes — this loads a Go plugin-host-native extension (a .so built with
// `go build -buildmode=plugin`) via the standard library's plugin package,
// keyed by a content hash of the .so file so a rebuilt plugin on disk is
// picked up without restarting the host. This is the one execution path
// documented as unsafe: a panicking or misbehaving extension crashes the
// host process, exactly as the original python_inproc did.
func (e *Engine) executeInproc(ctx context.Context, pl models.Plugin, action models.ActionSpec, args map[string]any, execCtx Context) Result {
	soPath := scriptPath(pl, action)

	contents, err := os.ReadFile(soPath)
	if err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("reading inproc extension: %v", err)}
	}
	sum := sha256.Sum256(contents)
	key := hex.EncodeToString(sum[:])

	e.inprocMu.Lock()
	fn, cached := e.inprocCache[key]
	e.inprocMu.Unlock()

	if !cached {
		p, err := plugin.Open(soPath)
		if err != nil {
			return Result{Status: StatusError, Error: fmt.Sprintf("loading inproc extension: %v", err)}
		}
		sym, err := p.Lookup("Execute")
		if err != nil {
			return Result{Status: StatusError, Error: fmt.Sprintf("inproc extension missing Execute symbol: %v", err)}
		}
		loaded, ok := sym.(InprocPlugin)
		if !ok {
			fnPtr, ok2 := sym.(*InprocPlugin)
			if !ok2 {
				return Result{Status: StatusError, Error: "inproc extension Execute has the wrong signature"}
			}
			loaded = *fnPtr
		}
		fn = loaded
		e.inprocMu.Lock()
		e.inprocCache[key] = fn
		e.inprocMu.Unlock()
	}

	out, err := fn(args, map[string]any{
		"user_id":      execCtx.UserID,
		"chat_id":      execCtx.ChatID,
		"execution_id": execCtx.ExecutionID,
	})
	if err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}
	return Result{Status: StatusSuccess, Output: out}
}
