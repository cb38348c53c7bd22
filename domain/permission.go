package domain

import (
	"courier/errors"
	"fmt"
	"strings"
)

// Permission is a right on an arbitrary resource, checked by the gateway's
// Authorize. Admin implies every other permission.
type Permission int

const (
	PermissionRead Permission = 1 << iota
	PermissionWrite
	PermissionExecute
	PermissionAdmin
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "Read"
	case PermissionWrite:
		return "Write"
	case PermissionExecute:
		return "Execute"
	case PermissionAdmin:
		return "Admin"
	default:
		return fmt.Sprintf("Permission(%d)", int(p))
	}
}

func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(s) {
	case "read":
		return PermissionRead, nil
	case "write":
		return PermissionWrite, nil
	case "execute":
		return PermissionExecute, nil
	case "admin":
		return PermissionAdmin, nil
	default:
		return 0, fmt.Errorf("%w: unknown permission %q", errors.ErrInvalidArgument, s)
	}
}
