package models

import "time"

// Direction is the traffic direction a SecurityGroupRule applies to.
type Direction string

const (
	DirectionIngress Direction = "ingress"
	DirectionEgress  Direction = "egress"
)

// Protocol is the L4 protocol a SecurityGroupRule applies to.
type Protocol string

const (
	ProtocolAll    Protocol = "all"
	ProtocolTCP    Protocol = "tcp"
	ProtocolUDP    Protocol = "udp"
	ProtocolICMP   Protocol = "icmp"
	ProtocolICMPv6 Protocol = "icmpv6"
)

// SecurityGroup is a named, versioned collection of SecurityGroupRules.
type SecurityGroup struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	Version     uint64    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SecurityGroupRule is one ingress/egress rule belonging to a SecurityGroup.
// PortStart == nil && PortEnd == nil means "any port"; CIDR == "" means "any
// source/destination".
type SecurityGroupRule struct {
	ID        string    `json:"id"`
	SGID      string    `json:"sg_id" validate:"required"`
	Direction Direction `json:"direction" validate:"required"`
	Protocol  Protocol  `json:"protocol" validate:"required"`
	PortStart *int32    `json:"port_start,omitempty"`
	PortEnd   *int32    `json:"port_end,omitempty"`
	CIDR      string    `json:"cidr,omitempty"`
}

// NicSecurityGroupBinding attaches a SecurityGroup to a NIC. The composite
// (NicID, SGID) is the key; the binding cascades away with either side.
type NicSecurityGroupBinding struct {
	NicID string `json:"nic_id" validate:"required"`
	SGID  string `json:"sg_id" validate:"required"`
}
