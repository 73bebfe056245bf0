package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskPermissionReassign rebuilds grants for stale entity instances.
	TaskPermissionReassign = "authz:reassign"
	// TaskOrphanCleanup prunes grants pointing at deleted resources.
	TaskOrphanCleanup = "authz:orphan_cleanup"
	// TaskTranslationSweep retranslates stale tracked fields.
	TaskTranslationSweep = "translate:sweep"
	// TaskDeployRun executes one post-deploy task queued by the sweep.
	TaskDeployRun = "deploy:run"
)

// PermissionReassignPayload selects which entity types to reassign. An empty
// list means every known type.
type PermissionReassignPayload struct {
	Entities []string `json:"entities,omitempty"`
}

// NewPermissionReassignTask constructs an Asynq task.
func NewPermissionReassignTask(payload PermissionReassignPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionReassign, data), nil
}

// NewOrphanCleanupTask constructs an Asynq task.
func NewOrphanCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskOrphanCleanup, nil)
}

// NewTranslationSweepTask constructs an Asynq task.
func NewTranslationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTranslationSweep, nil)
}

// DeployRunPayload names the post-deploy task to execute.
type DeployRunPayload struct {
	Name string `json:"name"`
}

// NewDeployRunTask constructs an Asynq task.
func NewDeployRunTask(payload DeployRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeployRun, data), nil
}
