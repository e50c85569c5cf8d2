package models

// EntityKind names the kind of entity an Event refers to.
type EntityKind string

const (
	EntityKindVM                     EntityKind = "vm"
	EntityKindNetwork                EntityKind = "network"
	EntityKindNIC                    EntityKind = "nic"
	EntityKindSecurityGroup          EntityKind = "security_group"
	EntityKindSecurityGroupRule      EntityKind = "security_group_rule"
	EntityKindNicSecurityGroupBinding EntityKind = "nic_security_group_binding"
	EntityKindProject                EntityKind = "project"
)

// EventKind is the tagged variant of an Event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is broadcast to watch subscribers after every applied mutation.
// Payload is the entity as it stood after the mutation (nil for Deleted).
type Event struct {
	Kind       EventKind  `json:"kind"`
	EntityKind EntityKind `json:"entity_kind"`
	ID         string     `json:"id"`
	NewVersion uint64     `json:"new_version"`
	Payload    any        `json:"payload,omitempty"`
}
