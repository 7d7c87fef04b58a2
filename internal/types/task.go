package types

import (
	"time"

	"gorm.io/datatypes"
)

// Task type wire values. The order of TaskTypesByPriority is the fixed
// global claim priority: metadata extraction always goes out before
// disassembly, regardless of how much disassembly work is pending.
const (
	TaskTypeMetadata    = "PEMetadata"
	TaskTypeDisassembly = "R2Disassembly"
)

func TaskTypesByPriority() []string {
	return []string{TaskTypeMetadata, TaskTypeDisassembly}
}

func IsSupportedTaskType(taskType string) bool {
	return taskType == TaskTypeMetadata || taskType == TaskTypeDisassembly
}

// Task is a durable work item. It is never deleted: completion only stamps
// completed_at so the record survives for auditing.
type Task struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Type        string         `gorm:"column:type;not null;index:idx_task_claim,priority:1" json:"type"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	AssignedAt  *time.Time     `gorm:"column:assigned_at;index:idx_task_claim,priority:2" json:"assigned_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ConsumerID  *int64         `gorm:"column:consumer_id" json:"consumer_id,omitempty"`
}

func (Task) TableName() string { return "task" }

type TaskConsumer struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"column:name;not null;uniqueIndex" json:"name"`
}

func (TaskConsumer) TableName() string { return "task_consumer" }

// TaskMeta is the optional metadata merged into a created task's payload
// alongside the target hash.
type TaskMeta struct {
	Tags      []string `json:"tags,omitempty"`
	FileNames []string `json:"file_names,omitempty"`
	SourceID  *int64   `json:"source_id,omitempty"`
}

// ClaimRequest is the body of a worker's claim call.
type ClaimRequest struct {
	Name    string   `json:"name"`
	Plugins []string `json:"plugins"`
}

// ClaimResponse is one claimed work item. An empty JSON object means no
// pending work for any of the requested plugins.
type ClaimResponse struct {
	ID      int64          `json:"id"`
	Type    string         `json:"type"`
	Payload datatypes.JSON `json:"payload"`
}
