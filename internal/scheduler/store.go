package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// TaskStore persists Task records to a single JSON file (spec §6's
// bot_data/_system/tasks/tasks.json), grounded on the original Python
// implementation's modules/tasks/store.py — a flat JSON document rewritten
// in full on every mutation, guarded by an in-process lock.
type TaskStore struct {
	path string

	mu    sync.Mutex
	tasks map[string]models.Task
}

// OpenTaskStore loads (or initializes) the task registry at path.
func OpenTaskStore(path string) (*TaskStore, error) {
	s := &TaskStore{path: path, tasks: make(map[string]models.Task)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading task registry %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	var list []models.Task
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parsing task registry %s: %w", path, err)
	}
	for _, t := range list {
		s.tasks[t.ID] = t
	}
	return s, nil
}

func (s *TaskStore) saveLocked() error {
	list := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, t)
	}
	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding task registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating task registry directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing task registry: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("activating task registry: %w", err)
	}
	return nil
}

// Create inserts a new task and persists the registry.
func (s *TaskStore) Create(name, actionName, schedule, userID string, args map[string]any) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := models.Task{
		ID:         uuid.New().String(),
		Name:       name,
		ActionName: actionName,
		Schedule:   schedule,
		UserID:     userID,
		Args:       args,
		Status:     models.TaskActive,
		CreatedAt:  time.Now(),
	}
	s.tasks[task.ID] = task
	if err := s.saveLocked(); err != nil {
		delete(s.tasks, task.ID)
		return models.Task{}, err
	}
	return task, nil
}

// List returns every task, in no particular order.
func (s *TaskStore) List() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, t)
	}
	return list
}

// Get returns a single task by id.
func (s *TaskStore) Get(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// SetStatus pauses or resumes a task.
func (s *TaskStore) SetStatus(id string, status models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	t.Status = status
	s.tasks[id] = t
	return s.saveLocked()
}

// RecordRun stamps a task's lastRun/nextRun after a fire (scheduled or manual).
func (s *TaskStore) RecordRun(id string, lastRun time.Time, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	t.LastRun = &lastRun
	t.NextRun = nextRun
	s.tasks[id] = t
	return s.saveLocked()
}

// Delete removes a task from the registry.
func (s *TaskStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %q not found", id)
	}
	delete(s.tasks, id)
	return s.saveLocked()
}
