package control

import "github.com/MalteJ/mvirt/pkg/models"

// Op names one of the deterministic mutations the projection understands.
type Op string

const (
	OpCreateNetwork     Op = "create_network"
	OpUpdateNetwork     Op = "update_network"
	OpDeleteNetwork     Op = "delete_network"
	OpCreateNic         Op = "create_nic"
	OpUpdateNic         Op = "update_nic"
	OpDeleteNic         Op = "delete_nic"
	OpCreateSG          Op = "create_security_group"
	OpDeleteSG          Op = "delete_security_group"
	OpCreateSGRule      Op = "create_security_group_rule"
	OpDeleteSGRule      Op = "delete_security_group_rule"
	OpBindNicSG         Op = "bind_nic_security_group"
	OpUnbindNicSG       Op = "unbind_nic_security_group"
	OpCreateProject     Op = "create_project"
	OpUpdateProject     Op = "update_project"
	OpDeleteProject     Op = "delete_project"
)

// Command is the envelope proposed to raft and replayed by Apply. Ids and
// timestamps are assigned by the proposer before proposal so that Apply
// stays deterministic: no clock reads, no randomness, no id generation.
type Command struct {
	Op Op `json:"op"`

	// ExpectedVersion, when non-nil, gates the mutation on OCC: the
	// target entity's current Version must equal *ExpectedVersion.
	ExpectedVersion *uint64 `json:"expected_version,omitempty"`

	Network             *models.Network             `json:"network,omitempty"`
	Nic                 *models.NIC                 `json:"nic,omitempty"`
	SecurityGroup        *models.SecurityGroup       `json:"security_group,omitempty"`
	SecurityGroupRule     *models.SecurityGroupRule   `json:"security_group_rule,omitempty"`
	Binding              *models.NicSecurityGroupBinding `json:"binding,omitempty"`
	Project              *models.Project             `json:"project,omitempty"`

	// ID identifies the target of a delete/unbind command, which carries
	// no full entity payload.
	ID string `json:"id,omitempty"`
}

// Response is returned by Apply (and threaded back to the Raft proposer)
// after a successful command; a rejected command yields its error instead.
type Response struct {
	Event *models.Event `json:"event,omitempty"`
}
