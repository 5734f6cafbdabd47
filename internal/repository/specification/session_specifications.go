package specification

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// ActiveSession matches the single active session slot
type ActiveSession struct{}

func (s ActiveSession) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", "active")
}

// ByStatus filters sessions by status
type ByStatus struct {
	Status string
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", s.Status)
}

// IdleSince matches rows whose last activity is strictly before Cutoff
type IdleSince struct {
	Cutoff time.Time
}

func (s IdleSince) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("last_activity_at < ?", s.Cutoff)
}

// SessionSearch does a case-insensitive match on display id or title
type SessionSearch struct {
	Query string
}

func (s SessionSearch) Apply(db *gorm.DB) *gorm.DB {
	q := strings.TrimSpace(s.Query)
	if q == "" {
		return db
	}
	pattern := "%" + q + "%"
	return db.Where("display_id ILIKE ? OR title ILIKE ?", pattern, pattern)
}
