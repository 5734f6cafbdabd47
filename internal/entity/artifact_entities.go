package entity

import (
	"time"

	"github.com/google/uuid"
)

type Project struct {
	Id          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DecisionStatus string

const (
	DecisionStatusProposed   DecisionStatus = "proposed"
	DecisionStatusAccepted   DecisionStatus = "accepted"
	DecisionStatusRejected   DecisionStatus = "rejected"
	DecisionStatusSuperseded DecisionStatus = "superseded"
)

type Decision struct {
	Id           uuid.UUID
	SessionId    uuid.UUID
	ProjectId    *uuid.UUID
	Title        string
	Description  string
	Rationale    string
	DecisionType string
	Status       DecisionStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

type Task struct {
	Id          uuid.UUID
	SessionId   uuid.UUID
	ProjectId   *uuid.UUID
	Title       string
	Description string
	Priority    string
	Status      TaskStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

type NamingStatus string

const (
	NamingStatusActive     NamingStatus = "active"
	NamingStatusDeprecated NamingStatus = "deprecated"
)

type NamingEntry struct {
	Id            uuid.UUID
	SessionId     uuid.UUID
	ProjectId     *uuid.UUID
	EntityType    string
	CanonicalName string
	Description   string
	Status        NamingStatus
	CreatedAt     time.Time
}
