package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// utc normalizes timestamps so sqlite's text comparison matches time order
func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func typeArgs(types []entity.PermissionType) []interface{} {
	args := make([]interface{}, len(types))
	for i, t := range types {
		args[i] = string(t)
	}
	return args
}
