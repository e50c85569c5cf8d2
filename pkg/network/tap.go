// Package network manages the TAP devices the supervisor attaches to VM
// NICs: allocation, creation against the host bridge, and teardown.
package network

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/coreos/go-iptables/iptables"
	sysctl "github.com/lorenzosaino/go-sysctl"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"

	"github.com/MalteJ/mvirt/pkg/log"
	"github.com/MalteJ/mvirt/pkg/models"
)

const tapPrefix = "mvirt"

// Allocator hands out TAP device names drawn from a monotonically
// increasing counter, as required so two concurrent starts never race on
// the same name.
type Allocator struct {
	mu      sync.Mutex
	next    uint64
	bridge  string
}

// NewAllocator returns an Allocator that attaches TAPs to bridge.
func NewAllocator(bridge string) *Allocator {
	return &Allocator{bridge: bridge}
}

// Reserve returns the next unused TAP name, e.g. "mvirt0", "mvirt1".
func (a *Allocator) Reserve() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := tapPrefix + strconv.FormatUint(a.next, 10)
	a.next++

	return name
}

// Create brings up a TAP device named name, attaches it to the allocator's
// bridge, and installs the NAT/forwarding rules needed for VM egress.
func (a *Allocator) Create(ctx context.Context, name string) error {
	logger := log.GetLogger(ctx).WithFields(logrus.Fields{
		"component": "network",
		"tap":       name,
		"bridge":    a.bridge,
	})
	logger.Debug("creating tap device")

	link := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		Mode:      netlink.TUNTAP_MODE_TAP,
	}

	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("creating tap %s: %w", name, err)
	}

	tapLink, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("looking up tap %s after creation: %w", name, err)
	}

	if a.bridge != "" {
		br, err := netlink.LinkByName(a.bridge)
		if err != nil {
			return fmt.Errorf("looking up bridge %s: %w", a.bridge, err)
		}

		if err := netlink.LinkSetMaster(tapLink, br.(*netlink.Bridge)); err != nil {
			return fmt.Errorf("attaching tap %s to bridge %s: %w", name, a.bridge, err)
		}
	}

	if err := netlink.LinkSetUp(tapLink); err != nil {
		return fmt.Errorf("enabling tap %s: %w", name, err)
	}

	if err := sysctl.Set(fmt.Sprintf("net.ipv4.conf.%s.proxy_arp", name), "1"); err != nil {
		return fmt.Errorf("enabling proxy_arp on %s: %w", name, err)
	}

	if err := sysctl.Set(fmt.Sprintf("net.ipv6.conf.%s.disable_ipv6", name), "1"); err != nil {
		return fmt.Errorf("disabling ipv6 on %s: %w", name, err)
	}

	if err := a.forwardingRules(name); err != nil {
		return err
	}

	return nil
}

func (a *Allocator) forwardingRules(tap string) error {
	if a.bridge == "" {
		return nil
	}

	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("opening iptables handle: %w", err)
	}

	if err := ipt.AppendUnique("nat", "POSTROUTING", "-o", a.bridge, "-j", "MASQUERADE"); err != nil {
		return fmt.Errorf("installing MASQUERADE rule: %w", err)
	}

	if err := ipt.InsertUnique("filter", "FORWARD", 1,
		"-m", "conntrack", "--ctstate", "RELATED,ESTABLISHED", "-j", "ACCEPT"); err != nil {
		return fmt.Errorf("installing conntrack ACCEPT rule: %w", err)
	}

	if err := ipt.InsertUnique("filter", "FORWARD", 1,
		"-i", tap, "-o", a.bridge, "-j", "ACCEPT"); err != nil {
		return fmt.Errorf("installing forwarding rule %s->%s: %w", tap, a.bridge, err)
	}

	return nil
}

// Delete removes the named TAP device. It is a no-op if the device is
// already gone.
func (a *Allocator) Delete(ctx context.Context, name string) error {
	logger := log.GetLogger(ctx).WithFields(logrus.Fields{
		"component": "network",
		"tap":       name,
	})

	link, err := netlink.LinkByName(name)
	if err != nil {
		if strings.Contains(err.Error(), "not found") || isLinkNotFound(err) {
			logger.Debug("tap already absent, nothing to delete")
			return nil
		}

		return fmt.Errorf("looking up tap %s: %w", name, err)
	}

	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("deleting tap %s: %w", name, err)
	}

	return nil
}

// sgChain is the per-tap filter chain ApplyRules maintains. One chain per
// NIC keeps rule churn on one tap from touching another's.
func sgChain(tap string) string {
	return "mvirt-sg-" + tap
}

// ApplyRules resolves rules (pkg/control.RaftRepository.EffectiveRules) into
// an iptables filter chain dedicated to tap, called by the supervisor after
// Start brings the NIC up. It is not a full stateful firewall: each rule
// becomes one ACCEPT match, and the chain ends in DROP once any rule names a
// direction, leaving unmatched traffic on that direction to fall through to
// the default FORWARD policy otherwise.
func ApplyRules(tap string, rules []*models.SecurityGroupRule) error {
	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("opening iptables handle: %w", err)
	}

	chain := sgChain(tap)

	if err := ipt.ClearChain("filter", chain); err != nil {
		return fmt.Errorf("resetting chain %s: %w", chain, err)
	}

	for _, rule := range rules {
		args := ruleArgs(tap, rule)

		if err := ipt.Append("filter", chain, args...); err != nil {
			return fmt.Errorf("installing rule %s on %s: %w", rule.ID, chain, err)
		}
	}

	if len(rules) > 0 {
		if err := ipt.Append("filter", chain, "-j", "DROP"); err != nil {
			return fmt.Errorf("installing default drop on %s: %w", chain, err)
		}
	}

	hook := "-i"
	if ingressOnly(rules) {
		hook = "-o"
	}

	if err := ipt.InsertUnique("filter", "FORWARD", 1, hook, tap, "-j", chain); err != nil {
		return fmt.Errorf("hooking chain %s into FORWARD: %w", chain, err)
	}

	return nil
}

// ingressOnly reports whether every rule only constrains ingress traffic,
// which lets the FORWARD hook match on packets leaving toward the tap
// ("-o tap") rather than packets originating from it.
func ingressOnly(rules []*models.SecurityGroupRule) bool {
	for _, r := range rules {
		if r.Direction != models.DirectionIngress {
			return false
		}
	}

	return len(rules) > 0
}

func ruleArgs(tap string, rule *models.SecurityGroupRule) []string {
	args := []string{"-i", tap}

	if rule.Direction == models.DirectionIngress {
		args = []string{"-o", tap}
	}

	if rule.Protocol != models.ProtocolAll {
		args = append(args, "-p", string(rule.Protocol))
	}

	if rule.CIDR != "" {
		if rule.Direction == models.DirectionIngress {
			args = append(args, "-s", rule.CIDR)
		} else {
			args = append(args, "-d", rule.CIDR)
		}
	}

	if rule.PortStart != nil && rule.PortEnd != nil {
		if *rule.PortStart == *rule.PortEnd {
			args = append(args, "--dport", strconv.Itoa(int(*rule.PortStart)))
		} else {
			args = append(args, "--dport", fmt.Sprintf("%d:%d", *rule.PortStart, *rule.PortEnd))
		}
	}

	return append(args, "-j", "ACCEPT")
}

func isLinkNotFound(err error) bool {
	_, ok := err.(netlink.LinkNotFoundError)
	return ok
}
