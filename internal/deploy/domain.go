package deploy

import (
	"context"
	"sort"
	"time"
)

// Process states. A task starts at NONE when first registered and moves to
// PENDING while queued or running, then SUCCESS or FAILURE.
const (
	StatusNone    = "NONE"
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Process is the persisted record of a registered maintenance task.
type Process struct {
	TaskName       string
	Priority       int
	Status         string
	LastRun        *time.Time
	LastRunVersion string
	TaskID         string
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Task is a maintenance operation that runs after each deployment. Tasks must
// be idempotent: a sweep may run them again when the gate conditions hold.
type Task struct {
	Name     string
	Priority int
	Cooldown time.Duration
	Run      func(ctx context.Context) error
}

// Registry holds the tasks known to this build, assembled explicitly at
// startup.
type Registry struct {
	tasks []Task
}

// NewRegistry builds a registry from the given tasks.
func NewRegistry(tasks ...Task) *Registry {
	r := &Registry{}
	for _, t := range tasks {
		r.Register(t)
	}
	return r
}

// Register adds a task; later registrations with the same name replace the
// earlier entry.
func (r *Registry) Register(t Task) {
	for i, existing := range r.tasks {
		if existing.Name == t.Name {
			r.tasks[i] = t
			return
		}
	}
	r.tasks = append(r.tasks, t)
}

// Tasks returns the registered tasks in ascending priority order.
func (r *Registry) Tasks() []Task {
	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Find returns the task with the given name.
func (r *Registry) Find(name string) (Task, bool) {
	for _, t := range r.tasks {
		if t.Name == name {
			return t, true
		}
	}
	return Task{}, false
}

// Names returns every registered task name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Name)
	}
	return out
}
