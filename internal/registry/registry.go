// Package registry implements the Plugin Registry (spec §4.6): manifest
// discovery across system and user plugin directories, required-field
// validation, action lookup by name, and parameter-schema enforcement.
// Grounded on the teacher repository's internal/plugins/discovery.go
// (path-traversal defense, duplicate-id rejection, directory scan shape)
// and the original implementation's modules/actions/registry.py
// (ActionRegistry: scan_plugins/_scan_dir/_register_actions_from_manifest/
// get_action/get_all_actions/delete_plugin), reworked from a process-wide
// singleton into an explicit, constructor-injected struct.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/config"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// actionEntry is the metadata the original registry.py stores per action
// name: which plugin owns it, and its compiled argument schema.
type actionEntry struct {
	pluginID string
	spec     models.ActionSpec
	schema   *jsonschema.Schema
}

// Registry holds every plugin and action currently loaded into memory.
// Safe for concurrent use.
type Registry struct {
	layout config.Layout
	logger *slog.Logger

	mu      sync.RWMutex
	plugins map[string]models.Plugin
	actions map[string]actionEntry
}

// New constructs an empty Registry. Call Scan to populate it.
func New(layout config.Layout, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		layout:  layout,
		logger:  logger,
		plugins: make(map[string]models.Plugin),
		actions: make(map[string]actionEntry),
	}
}

// Scan rescans the system plugin directory, and the userID's plugin
// directory when userID is non-empty, matching scan_plugins(user_id).
func (r *Registry) Scan(userID string) error {
	if err := r.scanDir(r.layout.SystemPluginsDir(), models.PluginRoleSystem, ""); err != nil {
		return err
	}
	if userID == "" {
		return nil
	}
	return r.scanDir(r.layout.UserPluginsDir(userID), models.PluginRoleUser, userID)
}

func (r *Registry) scanDir(dir string, role models.PluginRole, ownerID string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scanning plugin directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pluginDir := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(filepath.Join(pluginDir, ManifestFilename)); err != nil {
			continue
		}

		validPath, err := validatePluginPath(pluginDir)
		if err != nil {
			r.logger.Warn("skipping plugin with unsafe path", "path", pluginDir, "error", err)
			continue
		}

		manifest, err := loadManifest(validPath)
		if err != nil {
			r.logger.Warn("skipping invalid plugin manifest", "path", validPath, "error", err)
			continue
		}

		plugin := models.Plugin{
			Manifest: manifest,
			Path:     validPath,
			Role:     role,
			OwnerID:  ownerID,
		}
		if err := r.register(plugin); err != nil {
			r.logger.Warn("skipping plugin", "plugin_id", manifest.ID, "path", validPath, "error", err)
			continue
		}
		r.logger.Info("loaded plugin", "plugin_id", manifest.ID, "role", role)
	}
	return nil
}

// register adds or refreshes a single plugin. A second manifest declaring
// an id already owned by a plugin at a different path is rejected as an
// invalid/duplicate manifest (the teacher's discovery.go behavior);
// rescanning the same plugin directory refreshes its actions in place.
func (r *Registry) register(plugin models.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.plugins[plugin.Manifest.ID]; ok && existing.Path != plugin.Path {
		return fmt.Errorf("duplicate plugin id %q (existing at %s, new at %s)",
			plugin.Manifest.ID, existing.Path, plugin.Path)
	}

	// Drop this plugin's previously registered actions before re-adding,
	// so a manifest edit that removes an action doesn't leave it stale.
	for name, entry := range r.actions {
		if entry.pluginID == plugin.Manifest.ID {
			delete(r.actions, name)
		}
	}

	for _, action := range plugin.Manifest.Actions {
		if action.Name == "" {
			continue
		}
		schema, err := compileActionSchema(action)
		if err != nil {
			r.logger.Warn("action parameter schema failed to compile", "action", action.Name, "error", err)
		}
		// Duplicate action names across plugins shadow by load order: the
		// most recently scanned plugin's definition wins, matching
		// registry.py's plain self.actions[name] = {...} overwrite.
		r.actions[action.Name] = actionEntry{pluginID: plugin.Manifest.ID, spec: action, schema: schema}
	}

	r.plugins[plugin.Manifest.ID] = plugin
	return nil
}

// GetAction returns the action spec and owning plugin for actionName.
func (r *Registry) GetAction(actionName string) (models.ActionSpec, models.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.actions[actionName]
	if !ok {
		return models.ActionSpec{}, models.Plugin{}, false
	}
	return entry.spec, r.plugins[entry.pluginID], true
}

// GetAllActions returns every registered action, sorted by name for
// deterministic prompt rendering.
func (r *Registry) GetAllActions() []models.ActionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]models.ActionSpec, 0, len(r.actions))
	for _, entry := range r.actions {
		specs = append(specs, entry.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// GetPlugin returns a loaded plugin by id.
func (r *Registry) GetPlugin(pluginID string) (models.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[pluginID]
	return p, ok
}

// ValidateArgs checks args against actionName's declared parameter schema.
// An unknown action or an action with no declared parameters always passes.
func (r *Registry) ValidateArgs(actionName string, args map[string]any) error {
	r.mu.RLock()
	entry, ok := r.actions[actionName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return validateArgs(entry.schema, args)
}

// Delete removes a plugin's directory from disk and purges its actions,
// grounded on registry.py's delete_plugin.
func (r *Registry) Delete(pluginID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plugin, ok := r.plugins[pluginID]
	if !ok {
		return fmt.Errorf("plugin %q not found", pluginID)
	}
	if plugin.Path != "" {
		if err := os.RemoveAll(plugin.Path); err != nil {
			return fmt.Errorf("removing plugin directory: %w", err)
		}
	}

	delete(r.plugins, pluginID)
	for name, entry := range r.actions {
		if entry.pluginID == pluginID {
			delete(r.actions, name)
		}
	}
	return nil
}
