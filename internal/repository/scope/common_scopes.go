package scope

import (
	"fmt"

	"gorm.io/gorm"
)

func OrderByCreatedDesc(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

func OrderByCreatedAsc(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

func OrderByLastActivityDesc(db *gorm.DB) *gorm.DB {
	return db.Order("last_activity_at DESC")
}

// TimelineOrder sorts an event source by its time column, then id, which is
// the order the timeline cursor assumes.
func TimelineOrder(column string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(fmt.Sprintf("%s ASC", column)).Order("id ASC")
	}
}
