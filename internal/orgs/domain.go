package orgs

import "time"

// Organization is a tenant-like community owning projects and people groups.
type Organization struct {
	ID                  int64
	Code                string
	Name                string
	ParentID            *int64
	Languages           []string
	AutoTranslate       bool
	PermissionsUpToDate bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
