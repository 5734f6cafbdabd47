package specification

import (
	"fmt"
	"time"

	"devmemory-be/internal/repository/contract"

	"gorm.io/gorm"
)

// EventWindow bounds a timeline source to [From, Until] on Column
type EventWindow struct {
	Column string
	From   time.Time
	Until  time.Time
}

func (s EventWindow) Apply(db *gorm.DB) *gorm.DB {
	return db.Where(fmt.Sprintf("%s >= ? AND %s <= ?", s.Column, s.Column), s.From, s.Until)
}

// EventAfter resumes a timeline source after a cursor
type EventAfter struct {
	Column string
	Bound  *contract.EventBound
}

func (s EventAfter) Apply(db *gorm.DB) *gorm.DB {
	if s.Bound == nil {
		return db
	}
	switch {
	case s.Bound.TieId != nil:
		return db.Where(fmt.Sprintf("(%s > ? OR (%s = ? AND id > ?))", s.Column, s.Column), s.Bound.At, s.Bound.At, *s.Bound.TieId)
	case s.Bound.Inclusive:
		return db.Where(fmt.Sprintf("%s >= ?", s.Column), s.Bound.At)
	default:
		return db.Where(fmt.Sprintf("%s > ?", s.Column), s.Bound.At)
	}
}
