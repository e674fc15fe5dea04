// Package permission maps workspace roles to capability sets.
//
// Every role's grants are spelled out in a fixed table. Roles do not
// inherit from one another, and anything outside the table resolves to
// the empty set.
package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a workspace membership role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// ErrUnknownRole is returned by ParseRole for strings outside the table.
var ErrUnknownRole = errors.New("unknown workspace role")

// Set holds the eight independent workspace capabilities.
type Set struct {
	CanCreateEvents       bool `json:"can_create_events"`
	CanEditEvents         bool `json:"can_edit_events"`
	CanDeleteEvents       bool `json:"can_delete_events"`
	CanManageMembers      bool `json:"can_manage_members"`
	CanManageIntegrations bool `json:"can_manage_integrations"`
	CanManageSettings     bool `json:"can_manage_settings"`
	CanViewAllEvents      bool `json:"can_view_all_events"`
	CanExportCalendar     bool `json:"can_export_calendar"`
}

// Capability names a single field of Set.
type Capability int

const (
	CreateEvents Capability = iota + 1
	EditEvents
	DeleteEvents
	ManageMembers
	ManageIntegrations
	ManageSettings
	ViewAllEvents
	ExportCalendar
)

func (c Capability) String() string {
	switch c {
	case CreateEvents:
		return "create_events"
	case EditEvents:
		return "edit_events"
	case DeleteEvents:
		return "delete_events"
	case ManageMembers:
		return "manage_members"
	case ManageIntegrations:
		return "manage_integrations"
	case ManageSettings:
		return "manage_settings"
	case ViewAllEvents:
		return "view_all_events"
	case ExportCalendar:
		return "export_calendar"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Has reports whether s grants c. Unknown capabilities are never granted.
func (s Set) Has(c Capability) bool {
	switch c {
	case CreateEvents:
		return s.CanCreateEvents
	case EditEvents:
		return s.CanEditEvents
	case DeleteEvents:
		return s.CanDeleteEvents
	case ManageMembers:
		return s.CanManageMembers
	case ManageIntegrations:
		return s.CanManageIntegrations
	case ManageSettings:
		return s.CanManageSettings
	case ViewAllEvents:
		return s.CanViewAllEvents
	case ExportCalendar:
		return s.CanExportCalendar
	default:
		return false
	}
}

var table = map[Role]Set{
	RoleOwner: {
		CanCreateEvents:       true,
		CanEditEvents:         true,
		CanDeleteEvents:       true,
		CanManageMembers:      true,
		CanManageIntegrations: true,
		CanManageSettings:     true,
		CanViewAllEvents:      true,
		CanExportCalendar:     true,
	},
	RoleAdmin: {
		CanCreateEvents:       true,
		CanEditEvents:         true,
		CanDeleteEvents:       true,
		CanManageMembers:      true,
		CanManageIntegrations: true,
		CanManageSettings:     false,
		CanViewAllEvents:      true,
		CanExportCalendar:     true,
	},
	RoleMember: {
		CanCreateEvents:       true,
		CanEditEvents:         true,
		CanDeleteEvents:       false,
		CanManageMembers:      false,
		CanManageIntegrations: false,
		CanManageSettings:     false,
		CanViewAllEvents:      true,
		CanExportCalendar:     false,
	},
	RoleViewer: {
		CanCreateEvents:       false,
		CanEditEvents:         false,
		CanDeleteEvents:       false,
		CanManageMembers:      false,
		CanManageIntegrations: false,
		CanManageSettings:     false,
		CanViewAllEvents:      true,
		CanExportCalendar:     false,
	},
}

// Resolve returns the capability set for role. Unknown roles get the
// zero Set.
func Resolve(role Role) Set {
	return table[role]
}

// ParseRole converts a raw string (case and surrounding space ignored)
// into a known Role.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := table[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return r, nil
}

// Roles lists the known roles from most to least privileged.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer}
}
