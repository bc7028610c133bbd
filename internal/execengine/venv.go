package execengine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

const (
	requirementsFile  = "requirements.txt"
	depsInstalledFile = ".deps_installed"
	venvDirName       = ".venv"
)

// interpreterFor returns the python interpreter a plugin's "python" actions
// should use: an isolated per-plugin virtualenv when the plugin ships a
// requirements.txt, created and pip-installed on first use bounded by
// dependencyInstallDeadline and marked complete with a sentinel file
// (spec §4.3), otherwise the ambient interpreter.
func (e *Engine) interpreterFor(ctx context.Context, plugin models.Plugin) (string, error) {
	reqPath := filepath.Join(plugin.Path, requirementsFile)
	if _, err := os.Stat(reqPath); err != nil {
		return e.pythonBin, nil
	}

	venvPath := filepath.Join(plugin.Path, venvDirName)
	venvPython := venvInterpreterPath(venvPath)

	e.venvMu.Lock()
	done := e.venvDone[plugin.Path]
	e.venvMu.Unlock()
	if done {
		return venvPython, nil
	}
	if _, err := os.Stat(filepath.Join(venvPath, depsInstalledFile)); err == nil {
		e.venvMu.Lock()
		e.venvDone[plugin.Path] = true
		e.venvMu.Unlock()
		return venvPython, nil
	}

	if err := e.ensureVenv(ctx, plugin.Path, venvPath, venvPython, reqPath); err != nil {
		return "", err
	}
	return venvPython, nil
}

func (e *Engine) ensureVenv(ctx context.Context, pluginPath, venvPath, venvPython, reqPath string) error {
	installCtx, cancel := context.WithTimeout(ctx, dependencyInstallDeadline)
	defer cancel()

	if _, err := os.Stat(venvPython); err != nil {
		create := exec.CommandContext(installCtx, e.pythonBin, "-m", "venv", venvPath)
		if out, err := create.CombinedOutput(); err != nil {
			return fmt.Errorf("creating virtualenv for %s: %w: %s", pluginPath, err, out)
		}
	}

	install := exec.CommandContext(installCtx, venvPython, "-m", "pip", "install", "-r", reqPath, "-q")
	if out, err := install.CombinedOutput(); err != nil {
		return fmt.Errorf("installing dependencies for %s: %w: %s", pluginPath, err, out)
	}

	if err := os.WriteFile(filepath.Join(venvPath, depsInstalledFile), []byte{}, 0o644); err != nil {
		return fmt.Errorf("marking dependency sentinel: %w", err)
	}

	e.venvMu.Lock()
	e.venvDone[pluginPath] = true
	e.venvMu.Unlock()
	return nil
}

func venvInterpreterPath(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Scripts", "python.exe")
	}
	return filepath.Join(venvPath, "bin", "python3")
}
