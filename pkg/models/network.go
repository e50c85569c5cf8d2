package models

import "time"

// Network is a replicated L2/L3 domain that NICs are attached to.
type Network struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required"`
	IPv4Subnet  string    `json:"ipv4_subnet,omitempty"`
	IPv6Subnet  string    `json:"ipv6_subnet,omitempty"`
	Version     uint64    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NIC is a virtual network interface attached to a Network and, once a VM
// attaches it, optionally bound to a VM.
type NIC struct {
	ID            string `json:"id"`
	NetworkID     string `json:"network_id" validate:"required"`
	MAC           string `json:"mac" validate:"required"`
	VMID          string `json:"vm_id,omitempty"`
	AllocatedIPv4 string `json:"allocated_ipv4,omitempty"`
	Version       uint64 `json:"version"`
}
