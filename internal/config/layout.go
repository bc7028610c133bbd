package config

import "path/filepath"

// Layout resolves the filesystem paths of spec §6's persistent layout,
// rooted at Config.StorageRoot.
type Layout struct {
	root string
}

// NewLayout builds a Layout rooted at the config's storage root.
func (c Config) NewLayout() Layout {
	return Layout{root: c.StorageRoot}
}

// SystemPluginsDir is where system-scoped plugins live.
func (l Layout) SystemPluginsDir() string {
	return filepath.Join(l.root, "data", "plugins")
}

// UserPluginsDir is where a given user's plugins live.
func (l Layout) UserPluginsDir(userID string) string {
	return filepath.Join(l.root, "bot_data", "users", userID, "plugins")
}

// UserHome is a user's GENESIS_HOME.
func (l Layout) UserHome(userID string) string {
	return filepath.Join(l.root, "bot_data", "users", userID)
}

// SystemHome is the system-scoped GENESIS_HOME.
func (l Layout) SystemHome() string {
	return filepath.Join(l.root, "bot_data", "_system")
}

// TmpHome is used when neither system nor user scope applies.
func (l Layout) TmpHome() string {
	return filepath.Join(l.root, "data", "tmp")
}

// TasksFile is the single JSON file backing the Task Scheduler.
func (l Layout) TasksFile() string {
	return filepath.Join(l.root, "bot_data", "_system", "tasks", "tasks.json")
}

// PermissionsDB is the SQLite file backing the Permission Store.
func (l Layout) PermissionsDB() string {
	return filepath.Join(l.root, "bot_data", "_system", "permissions.db")
}

// ChatStoreDB is the SQLite file backing Chat/ChatItem/RawLog persistence.
func (l Layout) ChatStoreDB() string {
	return filepath.Join(l.root, "bot_data", "_system", "chats.db")
}

// PromptsFile is the JSON document mapping promptId to template text
// (spec §6 prompt template file format).
func (l Layout) PromptsFile() string {
	return filepath.Join(l.root, "data", "prompts.json")
}

// UserSecretFile is where a user's provider credential is written by the
// CLI's /pass command and polled by the orchestrator (spec §4.1 step 2).
func (l Layout) UserSecretFile(userID, provider string) string {
	return filepath.Join(l.UserHome(userID), "secrets", provider+".key")
}
