package projects

import "time"

// ContentType is the translation tracking key for projects.
const ContentType = "project"

// TranslatableFields lists the project fields fed to the translation engine.
var TranslatableFields = []string{"title", "description"}

// Project is a piece of work shared with one or more organizations.
type Project struct {
	ID                  int64
	Title               string
	Description         string
	IsPublic            bool
	OrganizationIDs     []int64
	PermissionsUpToDate bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
