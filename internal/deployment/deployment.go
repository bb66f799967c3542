// Package deployment generates and formats the opaque DeploymentId that
// scopes principal recovery so restarts of one deployment never inherit
// another's PnL (spec §3).
package deployment

import "github.com/google/uuid"

// ID is an opaque token identifying one process lifetime.
type ID string

// New generates a fresh DeploymentId.
func New() ID {
	return ID(uuid.New().String())
}

// String implements fmt.Stringer.
func (d ID) String() string { return string(d) }

// Empty reports whether d is the zero value.
func (d ID) Empty() bool { return d == "" }
