package execengine

import (
	"bufio"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// executePython dispatches a "python" action, first ensuring an isolated
// interpreter if the plugin declares dependencies (ensureVenv), else
// falling back to the ambient interpreter.
func (e *Engine) executePython(ctx context.Context, plugin models.Plugin, action models.ActionSpec, args map[string]any, env map[string]string) Result {
	interpreter, err := e.interpreterFor(ctx, plugin)
	if err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}
	return e.runChild(ctx, interpreter, []string{scriptPath(plugin, action)}, plugin.Path, env, args, nil)
}

// executeProcess dispatches a "process" action: the script itself is the
// executable, invoked directly with the same environment.
func (e *Engine) executeProcess(ctx context.Context, plugin models.Plugin, action models.ActionSpec, args map[string]any, env map[string]string, progress ProgressFunc) Result {
	return e.runChild(ctx, scriptPath(plugin, action), nil, plugin.Path, env, args, progress)
}

// runChild spawns the child, feeds it ACTION_ARGS JSON on stdin, and
// applies the streaming stdout protocol of spec §4.3.
func (e *Engine) runChild(ctx context.Context, name string, args []string, dir string, env map[string]string, actionArgs map[string]any, progress ProgressFunc) Result {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = mergedEnv(env)

	argsJSON, err := json.Marshal(actionArgs)
	if err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}
	cmd.Stdin = strings.NewReader(string(argsJSON))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return Result{Status: StatusError, Error: err.Error()}
	}
	// On cancellation, stop reading even if a process the child started
	// still holds the stdout pipe open.
	stop := context.AfterFunc(ctx, func() { stdout.Close() })
	defer stop()

	var lastResult any
	var rawLines strings.Builder
	sawJSON := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		rawLines.WriteString(line)
		rawLines.WriteByte('\n')

		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		sawJSON = true
		switch obj["status"] {
		case "progress", "match":
			if progress != nil {
				progress(obj)
			}
		default:
			lastResult = obj
		}
	}

	waitErr := cmd.Wait()

	if ctx.Err() == context.Canceled {
		return Result{Status: StatusError, Error: "cancelled", PartialOutput: rawLines.String()}
	}

	if waitErr != nil {
		code := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = "Unknown Error"
		}
		return Result{Status: StatusError, Error: errMsg, ExitCode: code, PartialOutput: rawLines.String()}
	}

	if !sawJSON {
		return Result{Status: StatusSuccess, Output: rawLines.String()}
	}
	return Result{Status: StatusSuccess, Output: lastResult}
}
