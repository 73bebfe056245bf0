package groups

import (
	"fmt"
	"time"

	"github.com/atrium-hq/atrium/internal/shared"
)

// PeopleGroup is a user collective inside an organization. Groups form a tree;
// every organization has exactly one root group and the root never has a
// parent.
type PeopleGroup struct {
	ID                  int64
	OrganizationID      int64
	ParentID            *int64
	Name                string
	IsRoot              bool
	PermissionsUpToDate bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Tree validation errors. All wrap shared.ErrValidation so handlers map them
// to 400 responses.
var (
	ErrRootParent   = fmt.Errorf("%w: root group cannot have a parent", shared.ErrValidation)
	ErrRootDelete   = fmt.Errorf("%w: root group cannot be deleted", shared.ErrValidation)
	ErrCycle        = fmt.Errorf("%w: group hierarchy cannot contain cycles", shared.ErrValidation)
	ErrCrossOrg     = fmt.Errorf("%w: parent group belongs to a different organization", shared.ErrValidation)
	ErrRootExists   = fmt.Errorf("%w: organization already has a root group", shared.ErrValidation)
	ErrSelfParent   = fmt.Errorf("%w: group cannot be its own parent", shared.ErrValidation)
)
