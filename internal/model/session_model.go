package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Session rows are never deleted. At most one row may have
// status = 'active'; see SessionSingleActiveIndex.
type Session struct {
	Id               uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DisplayId        string                      `gorm:"type:varchar(32);not null;uniqueIndex"`
	ProjectId        *uuid.UUID                  `gorm:"type:uuid;index"`
	Title            string                      `gorm:"type:varchar(255);not null;default:''"`
	Description      string                      `gorm:"type:varchar(2000);not null;default:''"`
	Goal             *string                     `gorm:"type:text"`
	Status           string                      `gorm:"type:varchar(16);not null;index"`
	StartedAt        time.Time                   `gorm:"not null"`
	LastActivityAt   time.Time                   `gorm:"not null;index"`
	EndedAt          *time.Time                  `gorm:"index"`
	EndReason        string                      `gorm:"type:varchar(32);not null;default:''"`
	TokenInput       int64                       `gorm:"not null;default:0"`
	TokenOutput      int64                       `gorm:"not null;default:0"`
	ContextsCreated  int64                       `gorm:"not null;default:0"`
	DecisionsCreated int64                       `gorm:"not null;default:0"`
	TasksCreated     int64                       `gorm:"not null;default:0"`
	TasksCompleted   int64                       `gorm:"not null;default:0"`
	Tags             datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Rating           datatypes.JSON              `gorm:"type:jsonb"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime"`
}

func (Session) TableName() string {
	return "sessions"
}

type Project struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name        string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (Project) TableName() string {
	return "projects"
}
