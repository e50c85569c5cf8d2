package control

import (
	"context"
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/google/uuid"

	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/watch"
)

// Proposer submits a Command for replication and returns once it has been
// applied to the local FSM. Implemented by pkg/raft.Node, which only
// accepts proposals on the leader: on a follower it returns
// errors.Unavailable naming the current leader and does not forward the
// command.
type Proposer interface {
	Propose(ctx context.Context, cmd Command) (Response, error)
}

// NetworkStore is the read/write surface over Network entities.
type NetworkStore interface {
	CreateNetwork(ctx context.Context, n *models.Network) (*models.Network, error)
	UpdateNetwork(ctx context.Context, n *models.Network, expectedVersion *uint64) (*models.Network, error)
	DeleteNetwork(ctx context.Context, id string) error
	GetNetwork(id string) (*models.Network, error)
	ListNetworks() []*models.Network
}

// NicStore is the read/write surface over NIC entities.
type NicStore interface {
	CreateNic(ctx context.Context, n *models.NIC) (*models.NIC, error)
	UpdateNic(ctx context.Context, n *models.NIC, expectedVersion *uint64) (*models.NIC, error)
	DeleteNic(ctx context.Context, id string) error
	GetNic(id string) (*models.NIC, error)
	ListNicsByNetwork(networkID string) []*models.NIC
}

// SecurityGroupStore is the read/write surface over SecurityGroups,
// their rules, and NIC bindings.
type SecurityGroupStore interface {
	CreateSecurityGroup(ctx context.Context, sg *models.SecurityGroup) (*models.SecurityGroup, error)
	DeleteSecurityGroup(ctx context.Context, id string) error
	GetSecurityGroup(id string) (*models.SecurityGroup, error)
	ListSecurityGroups() []*models.SecurityGroup

	CreateSecurityGroupRule(ctx context.Context, r *models.SecurityGroupRule) (*models.SecurityGroupRule, error)
	DeleteSecurityGroupRule(ctx context.Context, id string) error
	ListSecurityGroupRules(sgID string) []*models.SecurityGroupRule

	BindNicSecurityGroup(ctx context.Context, b *models.NicSecurityGroupBinding) error
	UnbindNicSecurityGroup(ctx context.Context, b *models.NicSecurityGroupBinding) error
	ListSecurityGroupsForNic(nicID string) []*models.SecurityGroup
}

// ProjectStore is the read/write surface over Project entities.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) (*models.Project, error)
	DeleteProject(ctx context.Context, id string) error
	GetProject(id string) (*models.Project, error)
	ListProjects() []*models.Project
}

// Watch exposes the local event bus for a node's subscribers (e.g. the
// Console/watch gRPC surface).
type Watch interface {
	Watch(ctx context.Context) *watch.Subscription
}

// Repository is the full façade handlers depend on: every replicated
// entity kind plus the local watch bus.
type Repository interface {
	NetworkStore
	NicStore
	SecurityGroupStore
	ProjectStore
	Watch
}

// RaftRepository implements Repository over a Proposer (pkg/raft.Node) for
// writes and a locally-applied FSM's projection for reads. Reads are always
// served from the local projection, including on followers: Raft replicates
// state to every voter, so a local read does not need to visit the leader
// at the cost of being linearizable only up to local apply lag.
type RaftRepository struct {
	proposer Proposer
	fsm      *FSM
	bus      *watch.Bus
}

// NewRaftRepository returns a Repository that proposes writes through
// proposer and answers reads from fsm's projection.
func NewRaftRepository(proposer Proposer, fsm *FSM, bus *watch.Bus) *RaftRepository {
	return &RaftRepository{proposer: proposer, fsm: fsm, bus: bus}
}

func (r *RaftRepository) propose(ctx context.Context, cmd Command) (Response, error) {
	return r.proposer.Propose(ctx, cmd)
}

// CreateNetwork proposes n for creation, assigning it a fresh id if the
// caller did not already supply one. Ids are generated here, before
// proposal, so Apply never reads randomness (pkg/control.Command's
// determinism contract).
func (r *RaftRepository) CreateNetwork(ctx context.Context, n *models.Network) (*models.Network, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	resp, err := r.propose(ctx, Command{Op: OpCreateNetwork, Network: n})
	if err != nil {
		return nil, err
	}

	return r.GetNetwork(resp.Event.ID)
}

func (r *RaftRepository) UpdateNetwork(ctx context.Context, n *models.Network, expectedVersion *uint64) (*models.Network, error) {
	resp, err := r.propose(ctx, Command{Op: OpUpdateNetwork, Network: n, ExpectedVersion: expectedVersion})
	if err != nil {
		return nil, err
	}

	return r.GetNetwork(resp.Event.ID)
}

func (r *RaftRepository) DeleteNetwork(ctx context.Context, id string) error {
	_, err := r.propose(ctx, Command{Op: OpDeleteNetwork, ID: id})
	return err
}

func (r *RaftRepository) GetNetwork(id string) (*models.Network, error) {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	n, ok := r.fsm.proj.networks[id]
	if !ok {
		return nil, errors.NotFound("network %s not found", id)
	}

	cp := *n
	return &cp, nil
}

func (r *RaftRepository) ListNetworks() []*models.Network {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	out := make([]*models.Network, 0, len(r.fsm.proj.networks))
	for _, n := range r.fsm.proj.networks {
		cp := *n
		out = append(out, &cp)
	}

	return out
}

func (r *RaftRepository) CreateNic(ctx context.Context, n *models.NIC) (*models.NIC, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	if n.AllocatedIPv4 == "" {
		ip, err := r.allocateIPv4(n.NetworkID)
		if err != nil {
			return nil, fmt.Errorf("allocating ipv4 for nic on network %s: %w", n.NetworkID, err)
		}

		n.AllocatedIPv4 = ip
	}

	resp, err := r.propose(ctx, Command{Op: OpCreateNic, Nic: n})
	if err != nil {
		return nil, err
	}

	return r.GetNic(resp.Event.ID)
}

func (r *RaftRepository) UpdateNic(ctx context.Context, n *models.NIC, expectedVersion *uint64) (*models.NIC, error) {
	resp, err := r.propose(ctx, Command{Op: OpUpdateNic, Nic: n, ExpectedVersion: expectedVersion})
	if err != nil {
		return nil, err
	}

	return r.GetNic(resp.Event.ID)
}

func (r *RaftRepository) DeleteNic(ctx context.Context, id string) error {
	_, err := r.propose(ctx, Command{Op: OpDeleteNic, ID: id})
	return err
}

func (r *RaftRepository) GetNic(id string) (*models.NIC, error) {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	n, ok := r.fsm.proj.nics[id]
	if !ok {
		return nil, errors.NotFound("nic %s not found", id)
	}

	cp := *n
	return &cp, nil
}

func (r *RaftRepository) ListNicsByNetwork(networkID string) []*models.NIC {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	ids := r.fsm.proj.nicsByNet[networkID]
	out := make([]*models.NIC, 0, len(ids))

	for id := range ids {
		cp := *r.fsm.proj.nics[id]
		out = append(out, &cp)
	}

	return out
}

// allocateIPv4 returns the lowest free host address in networkID's
// IPv4Subnet, skipping the network/broadcast addresses and .1 (reserved for
// the bridge gateway). Run by the proposer before Propose, alongside id
// assignment, so Apply never has to make an allocation decision itself.
func (r *RaftRepository) allocateIPv4(networkID string) (string, error) {
	netw, err := r.GetNetwork(networkID)
	if err != nil {
		return "", err
	}

	if netw.IPv4Subnet == "" {
		return "", nil
	}

	_, ipnet, err := net.ParseCIDR(netw.IPv4Subnet)
	if err != nil {
		return "", fmt.Errorf("parsing subnet %s: %w", netw.IPv4Subnet, err)
	}

	used := make(map[string]bool)
	for _, nic := range r.ListNicsByNetwork(networkID) {
		if nic.AllocatedIPv4 != "" {
			used[nic.AllocatedIPv4] = true
		}
	}

	count := cidr.AddressCount(ipnet)

	for i := uint64(2); i+1 < count; i++ {
		ip, err := cidr.Host(ipnet, int(i))
		if err != nil {
			break
		}

		if !used[ip.String()] {
			return ip.String(), nil
		}
	}

	return "", errors.FailedPrecondition("no free ipv4 addresses left in subnet %s", netw.IPv4Subnet)
}

func (r *RaftRepository) CreateSecurityGroup(ctx context.Context, sg *models.SecurityGroup) (*models.SecurityGroup, error) {
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}

	resp, err := r.propose(ctx, Command{Op: OpCreateSG, SecurityGroup: sg})
	if err != nil {
		return nil, err
	}

	return r.GetSecurityGroup(resp.Event.ID)
}

func (r *RaftRepository) DeleteSecurityGroup(ctx context.Context, id string) error {
	_, err := r.propose(ctx, Command{Op: OpDeleteSG, ID: id})
	return err
}

func (r *RaftRepository) GetSecurityGroup(id string) (*models.SecurityGroup, error) {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	sg, ok := r.fsm.proj.sgs[id]
	if !ok {
		return nil, errors.NotFound("security group %s not found", id)
	}

	cp := *sg
	return &cp, nil
}

func (r *RaftRepository) ListSecurityGroups() []*models.SecurityGroup {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	out := make([]*models.SecurityGroup, 0, len(r.fsm.proj.sgs))
	for _, sg := range r.fsm.proj.sgs {
		cp := *sg
		out = append(out, &cp)
	}

	return out
}

func (r *RaftRepository) CreateSecurityGroupRule(ctx context.Context, rule *models.SecurityGroupRule) (*models.SecurityGroupRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	resp, err := r.propose(ctx, Command{Op: OpCreateSGRule, SecurityGroupRule: rule})
	if err != nil {
		return nil, err
	}

	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	cp := *r.fsm.proj.sgRules[resp.Event.ID]
	return &cp, nil
}

func (r *RaftRepository) DeleteSecurityGroupRule(ctx context.Context, id string) error {
	_, err := r.propose(ctx, Command{Op: OpDeleteSGRule, ID: id})
	return err
}

func (r *RaftRepository) ListSecurityGroupRules(sgID string) []*models.SecurityGroupRule {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	var out []*models.SecurityGroupRule

	for _, rule := range r.fsm.proj.sgRules {
		if rule.SGID == sgID {
			cp := *rule
			out = append(out, &cp)
		}
	}

	return out
}

func (r *RaftRepository) BindNicSecurityGroup(ctx context.Context, b *models.NicSecurityGroupBinding) error {
	_, err := r.propose(ctx, Command{Op: OpBindNicSG, Binding: b})
	return err
}

func (r *RaftRepository) UnbindNicSecurityGroup(ctx context.Context, b *models.NicSecurityGroupBinding) error {
	_, err := r.propose(ctx, Command{Op: OpUnbindNicSG, Binding: b})
	return err
}

func (r *RaftRepository) ListSecurityGroupsForNic(nicID string) []*models.SecurityGroup {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	var out []*models.SecurityGroup

	for key := range r.fsm.proj.bindings {
		if key.NicID == nicID {
			if sg, ok := r.fsm.proj.sgs[key.SGID]; ok {
				cp := *sg
				out = append(out, &cp)
			}
		}
	}

	return out
}

// EffectiveRules resolves every SecurityGroupRule bound to a NIC, by way of
// its NicSecurityGroupBinding -> SecurityGroup -> SecurityGroupRule chain.
// The supervisor passes the result straight to pkg/network.ApplyRules.
func (r *RaftRepository) EffectiveRules(nicID string) []*models.SecurityGroupRule {
	var out []*models.SecurityGroupRule

	for _, sg := range r.ListSecurityGroupsForNic(nicID) {
		out = append(out, r.ListSecurityGroupRules(sg.ID)...)
	}

	return out
}

func (r *RaftRepository) CreateProject(ctx context.Context, p *models.Project) (*models.Project, error) {
	resp, err := r.propose(ctx, Command{Op: OpCreateProject, Project: p})
	if err != nil {
		return nil, err
	}

	return r.GetProject(resp.Event.ID)
}

func (r *RaftRepository) UpdateProject(ctx context.Context, p *models.Project) (*models.Project, error) {
	resp, err := r.propose(ctx, Command{Op: OpUpdateProject, Project: p})
	if err != nil {
		return nil, err
	}

	return r.GetProject(resp.Event.ID)
}

func (r *RaftRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.propose(ctx, Command{Op: OpDeleteProject, ID: id})
	return err
}

func (r *RaftRepository) GetProject(id string) (*models.Project, error) {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	p, ok := r.fsm.proj.projects[id]
	if !ok {
		return nil, errors.NotFound("project %s not found", id)
	}

	cp := *p
	return &cp, nil
}

func (r *RaftRepository) ListProjects() []*models.Project {
	r.fsm.proj.mu.RLock()
	defer r.fsm.proj.mu.RUnlock()

	out := make([]*models.Project, 0, len(r.fsm.proj.projects))
	for _, p := range r.fsm.proj.projects {
		cp := *p
		out = append(out, &cp)
	}

	return out
}

func (r *RaftRepository) Watch(ctx context.Context) *watch.Subscription {
	return r.bus.Subscribe(ctx)
}

// localProposer applies a Command directly to an FSM, bypassing Raft. Used
// by MemoryRepository so unit tests can exercise the full apply/OCC/event
// path without standing up a Raft cluster.
type localProposer struct {
	fsm *FSM
}

func (p *localProposer) Propose(ctx context.Context, cmd Command) (Response, error) {
	resp, err := p.fsm.proj.apply(cmd, p.fsm.bus)
	if err != nil {
		return Response{}, err
	}

	return resp, nil
}

// NewMemoryRepository returns a Repository backed by a fresh in-process FSM
// with no Raft replication, for tests and single-node bootstrap scenarios.
func NewMemoryRepository(bus *watch.Bus) *RaftRepository {
	fsm := NewFSM(bus, nil)
	return NewRaftRepository(&localProposer{fsm: fsm}, fsm, bus)
}
