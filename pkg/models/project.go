package models

import (
	"regexp"
	"time"

	"github.com/MalteJ/mvirt/pkg/errors"
)

var projectIDPattern = regexp.MustCompile(`^[a-z0-9]{1,32}$`)

// Project namespaces VMs and other entities. Membership is carried on each
// entity as ProjectID; a Project itself has no children back-pointers.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ValidateProjectID checks id against the lowercase alphanumeric, <=32 char
// rule for Project ids.
func ValidateProjectID(id string) error {
	if id == "" {
		return errors.InvalidArgument("project id is required")
	}

	if !projectIDPattern.MatchString(id) {
		return errors.InvalidArgument("project id %q must be lowercase alphanumeric, at most 32 characters", id)
	}

	return nil
}
