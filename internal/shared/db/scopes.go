package db

import (
	"time"

	"gorm.io/gorm"
)

// StatusIn restricts a query to rows whose status column is one of statuses.
func StatusIn(statuses ...string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status IN ?", statuses)
	}
}

// CreatedBefore restricts a query to rows created strictly before t.
func CreatedBefore(t time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at < ?", t)
	}
}

// Paginate applies offset/limit for 1-based pages.
func Paginate(page, pageSize int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		if pageSize <= 0 {
			pageSize = 20
		}
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}
