package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// ContextEntry.Embedding is declared as a bare vector here; the migration
// pins the column to vector(EMBEDDING_DIMENSION).
type ContextEntry struct {
	Id        uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId uuid.UUID                   `gorm:"type:uuid;not null;index"`
	Session   *Session                    `gorm:"foreignKey:SessionId;constraint:OnDelete:RESTRICT"`
	ProjectId *uuid.UUID                  `gorm:"type:uuid;index"`
	Content   string                      `gorm:"type:text;not null"`
	Type      string                      `gorm:"type:varchar(32);not null;index"`
	Tags      datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Embedding *pgvector.Vector            `gorm:"type:vector"`
	CreatedAt time.Time                   `gorm:"not null;index"`
}

func (ContextEntry) TableName() string {
	return "context_entries"
}

type Decision struct {
	Id           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Session      *Session   `gorm:"foreignKey:SessionId;constraint:OnDelete:RESTRICT"`
	ProjectId    *uuid.UUID `gorm:"type:uuid;index"`
	Title        string     `gorm:"type:varchar(255);not null"`
	Description  string     `gorm:"type:text"`
	Rationale    string     `gorm:"type:text"`
	DecisionType string     `gorm:"type:varchar(64)"`
	Status       string     `gorm:"type:varchar(32);not null"`
	CreatedAt    time.Time  `gorm:"not null;index"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`
}

func (Decision) TableName() string {
	return "decisions"
}

type Task struct {
	Id          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId   uuid.UUID  `gorm:"type:uuid;not null;index"`
	Session     *Session   `gorm:"foreignKey:SessionId;constraint:OnDelete:RESTRICT"`
	ProjectId   *uuid.UUID `gorm:"type:uuid;index"`
	Title       string     `gorm:"type:varchar(255);not null"`
	Description string     `gorm:"type:text"`
	Priority    string     `gorm:"type:varchar(16);not null;default:'medium'"`
	Status      string     `gorm:"type:varchar(32);not null;index"`
	CreatedAt   time.Time  `gorm:"not null;index"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
	CompletedAt *time.Time `gorm:"index"`
}

func (Task) TableName() string {
	return "tasks"
}

type NamingEntry struct {
	Id            uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId     uuid.UUID  `gorm:"type:uuid;not null;index"`
	Session       *Session   `gorm:"foreignKey:SessionId;constraint:OnDelete:RESTRICT"`
	ProjectId     *uuid.UUID `gorm:"type:uuid;uniqueIndex:naming_project_name"`
	EntityType    string     `gorm:"type:varchar(64);not null"`
	CanonicalName string     `gorm:"type:varchar(255);not null;uniqueIndex:naming_project_name"`
	Description   string     `gorm:"type:text"`
	Status        string     `gorm:"type:varchar(16);not null"`
	CreatedAt     time.Time  `gorm:"not null"`
}

func (NamingEntry) TableName() string {
	return "naming_entries"
}
