package store

import (
	"unicode/utf8"

	"gorm.io/gorm"
)

// ============================================================================
// Query Scopes
// ============================================================================

// childPrefix returns relpath+"/" and its length in characters, as
// counted by substr() on both engines.
func childPrefix(relpath string) (string, int) {
	prefix := relpath + "/"
	return prefix, utf8.RuneCountInString(prefix)
}

// InSubtree restricts column to relpath and all of its descendants. The
// prefix test is a plain string comparison so it stays case-sensitive
// where LIKE is not.
func InSubtree(column, relpath string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if relpath == "" {
			return db
		}
		prefix, n := childPrefix(relpath)
		return db.Where("("+column+" = ? OR substr("+column+", 1, ?) = ?)",
			relpath, n, prefix)
	}
}

// StrictlyBelow restricts column to the descendants of relpath.
func StrictlyBelow(column, relpath string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if relpath == "" {
			return db.Where(column + " <> ''")
		}
		prefix, n := childPrefix(relpath)
		return db.Where("substr("+column+", 1, ?) = ?", n, prefix)
	}
}

// ForWC restricts a query to one working-copy root.
func ForWC(wcID int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("wc_id = ?", wcID)
	}
}

// ============================================================================
// Generic Helpers
// ============================================================================

// First returns the first row matching the query, or nil when none exists.
func First[T any](query *gorm.DB) (*T, error) {
	var rows []T
	if err := query.Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// All returns every row matching the query.
func All[T any](query *gorm.DB) ([]T, error) {
	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Exists reports whether any row matches the query.
func Exists(query *gorm.DB) (bool, error) {
	var n int64
	if err := query.Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}

// Int64Ptr returns a pointer to n.
func Int64Ptr(n int64) *int64 {
	return &n
}

// Deref returns *p or the zero value.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
