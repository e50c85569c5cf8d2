package models

import (
	"regexp"

	"github.com/MalteJ/mvirt/pkg/errors"
)

// idPattern matches the opaque ids used for VMs, networks, NICs, security
// groups and bindings: lowercase alphanumerics, dashes and underscores.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// VMID is the globally unique identifier of a VM.
type VMID string

// NewVMID validates raw and returns it as a VMID.
func NewVMID(raw string) (VMID, error) {
	if raw == "" {
		return "", errors.ErrVMIDRequired
	}

	if !idPattern.MatchString(raw) {
		return "", errors.IncorrectVMIDFormatError{ActualID: raw}
	}

	return VMID(raw), nil
}

func (id VMID) String() string {
	return string(id)
}
