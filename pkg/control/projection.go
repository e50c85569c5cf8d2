// Package control implements the replicated state machine: an in-memory
// projection of networks, NICs, security groups, bindings and projects,
// mutated only through Apply, plus the repository façade handlers use to
// read and propose against it.
package control

import (
	"sync"

	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/watch"
)

// projection holds the maps keyed by id for each replicated entity kind,
// plus the secondary indexes Apply needs for referential-integrity checks
// and cascades. Guarded by mu: Apply is the sole writer, reads take RLock.
type projection struct {
	mu sync.RWMutex

	networks map[string]*models.Network
	nics     map[string]*models.NIC
	sgs      map[string]*models.SecurityGroup
	sgRules  map[string]*models.SecurityGroupRule
	bindings map[bindingKey]struct{}
	projects map[string]*models.Project

	networkNames map[string]string // name -> id
	nicsByNet    map[string]map[string]struct{}

	lastIndex uint64
}

type bindingKey struct {
	NicID string
	SGID  string
}

func newProjection() *projection {
	return &projection{
		networks:     make(map[string]*models.Network),
		nics:         make(map[string]*models.NIC),
		sgs:          make(map[string]*models.SecurityGroup),
		sgRules:      make(map[string]*models.SecurityGroupRule),
		bindings:     make(map[bindingKey]struct{}),
		projects:     make(map[string]*models.Project),
		networkNames: make(map[string]string),
		nicsByNet:    make(map[string]map[string]struct{}),
	}
}

// apply runs the four-step sequence of §4.5 against the projection and, on
// success, publishes the resulting Event to bus. It is the single
// mutation path shared by the raft-backed and in-memory repositories.
func (p *projection) apply(cmd Command, bus *watch.Bus) (Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ev, err := p.applyLocked(cmd)
	if err != nil {
		return Response{}, err
	}

	p.lastIndex++

	if bus != nil && ev != nil {
		bus.Publish(*ev)
	}

	return Response{Event: ev}, nil
}

func (p *projection) applyLocked(cmd Command) (*models.Event, error) {
	switch cmd.Op {
	case OpCreateNetwork:
		return p.createNetwork(cmd.Network)
	case OpUpdateNetwork:
		return p.updateNetwork(cmd.Network, cmd.ExpectedVersion)
	case OpDeleteNetwork:
		return p.deleteNetwork(cmd.ID)
	case OpCreateNic:
		return p.createNic(cmd.Nic)
	case OpUpdateNic:
		return p.updateNic(cmd.Nic, cmd.ExpectedVersion)
	case OpDeleteNic:
		return p.deleteNic(cmd.ID)
	case OpCreateSG:
		return p.createSG(cmd.SecurityGroup)
	case OpDeleteSG:
		return p.deleteSG(cmd.ID)
	case OpCreateSGRule:
		return p.createSGRule(cmd.SecurityGroupRule)
	case OpDeleteSGRule:
		return p.deleteSGRule(cmd.ID)
	case OpBindNicSG:
		return p.bindNicSG(cmd.Binding)
	case OpUnbindNicSG:
		return p.unbindNicSG(cmd.Binding)
	case OpCreateProject:
		return p.createProject(cmd.Project)
	case OpUpdateProject:
		return p.updateProject(cmd.Project, cmd.ExpectedVersion)
	case OpDeleteProject:
		return p.deleteProject(cmd.ID)
	default:
		return nil, errors.InvalidArgument("unknown command op %q", cmd.Op)
	}
}

func checkVersion(current uint64, expected *uint64) error {
	if expected != nil && *expected != current {
		return errors.Conflict("expected_version %d does not match current version %d", *expected, current)
	}

	return nil
}

func (p *projection) createNetwork(n *models.Network) (*models.Event, error) {
	if n == nil || n.ID == "" {
		return nil, errors.InvalidArgument("network requires an id")
	}

	if _, exists := p.networks[n.ID]; exists {
		return nil, errors.AlreadyExists("network %s already exists", n.ID)
	}

	if existingID, exists := p.networkNames[n.Name]; exists && existingID != n.ID {
		return nil, errors.AlreadyExists("network name %q already in use", n.Name)
	}

	stored := *n
	stored.Version = 1
	p.networks[n.ID] = &stored
	p.networkNames[n.Name] = n.ID
	p.nicsByNet[n.ID] = make(map[string]struct{})

	return &models.Event{Kind: models.EventCreated, EntityKind: models.EntityKindNetwork, ID: n.ID, NewVersion: 1, Payload: stored}, nil
}

func (p *projection) updateNetwork(n *models.Network, expected *uint64) (*models.Event, error) {
	if n == nil || n.ID == "" {
		return nil, errors.InvalidArgument("network requires an id")
	}

	existing, ok := p.networks[n.ID]
	if !ok {
		return nil, errors.NotFound("network %s not found", n.ID)
	}

	if err := checkVersion(existing.Version, expected); err != nil {
		return nil, err
	}

	updated := *n
	updated.Version = existing.Version + 1
	p.networks[n.ID] = &updated

	if existing.Name != n.Name {
		delete(p.networkNames, existing.Name)
		p.networkNames[n.Name] = n.ID
	}

	return &models.Event{Kind: models.EventUpdated, EntityKind: models.EntityKindNetwork, ID: n.ID, NewVersion: updated.Version, Payload: updated}, nil
}

func (p *projection) deleteNetwork(id string) (*models.Event, error) {
	existing, ok := p.networks[id]
	if !ok {
		return nil, errors.NotFound("network %s not found", id)
	}

	if len(p.nicsByNet[id]) > 0 {
		return nil, errors.FailedPrecondition("network %s still has attached NICs", id)
	}

	delete(p.networks, id)
	delete(p.networkNames, existing.Name)
	delete(p.nicsByNet, id)

	return &models.Event{Kind: models.EventDeleted, EntityKind: models.EntityKindNetwork, ID: id}, nil
}

func (p *projection) createNic(n *models.NIC) (*models.Event, error) {
	if n == nil || n.ID == "" {
		return nil, errors.InvalidArgument("nic requires an id")
	}

	if _, exists := p.nics[n.ID]; exists {
		return nil, errors.AlreadyExists("nic %s already exists", n.ID)
	}

	if _, ok := p.networks[n.NetworkID]; !ok {
		return nil, errors.FailedPrecondition("nic %s references unknown network %s", n.ID, n.NetworkID)
	}

	for existingID := range p.nicsByNet[n.NetworkID] {
		if p.nics[existingID].MAC == n.MAC {
			return nil, errors.AlreadyExists("mac %s already in use on network %s", n.MAC, n.NetworkID)
		}
	}

	stored := *n
	stored.Version = 1
	p.nics[n.ID] = &stored
	p.nicsByNet[n.NetworkID][n.ID] = struct{}{}

	return &models.Event{Kind: models.EventCreated, EntityKind: models.EntityKindNIC, ID: n.ID, NewVersion: 1, Payload: stored}, nil
}

func (p *projection) updateNic(n *models.NIC, expected *uint64) (*models.Event, error) {
	if n == nil || n.ID == "" {
		return nil, errors.InvalidArgument("nic requires an id")
	}

	existing, ok := p.nics[n.ID]
	if !ok {
		return nil, errors.NotFound("nic %s not found", n.ID)
	}

	if err := checkVersion(existing.Version, expected); err != nil {
		return nil, err
	}

	if n.NetworkID != existing.NetworkID {
		return nil, errors.InvalidArgument("nic %s cannot change network", n.ID)
	}

	updated := *n
	updated.Version = existing.Version + 1
	p.nics[n.ID] = &updated

	return &models.Event{Kind: models.EventUpdated, EntityKind: models.EntityKindNIC, ID: n.ID, NewVersion: updated.Version, Payload: updated}, nil
}

func (p *projection) deleteNic(id string) (*models.Event, error) {
	existing, ok := p.nics[id]
	if !ok {
		return nil, errors.NotFound("nic %s not found", id)
	}

	for key := range p.bindings {
		if key.NicID == id {
			delete(p.bindings, key)
		}
	}

	delete(p.nics, id)
	delete(p.nicsByNet[existing.NetworkID], id)

	return &models.Event{Kind: models.EventDeleted, EntityKind: models.EntityKindNIC, ID: id}, nil
}

func (p *projection) createSG(sg *models.SecurityGroup) (*models.Event, error) {
	if sg == nil || sg.ID == "" {
		return nil, errors.InvalidArgument("security group requires an id")
	}

	if _, exists := p.sgs[sg.ID]; exists {
		return nil, errors.AlreadyExists("security group %s already exists", sg.ID)
	}

	stored := *sg
	stored.Version = 1
	p.sgs[sg.ID] = &stored

	return &models.Event{Kind: models.EventCreated, EntityKind: models.EntityKindSecurityGroup, ID: sg.ID, NewVersion: 1, Payload: stored}, nil
}

func (p *projection) deleteSG(id string) (*models.Event, error) {
	if _, ok := p.sgs[id]; !ok {
		return nil, errors.NotFound("security group %s not found", id)
	}

	for ruleID, rule := range p.sgRules {
		if rule.SGID == id {
			delete(p.sgRules, ruleID)
		}
	}

	for key := range p.bindings {
		if key.SGID == id {
			delete(p.bindings, key)
		}
	}

	delete(p.sgs, id)

	return &models.Event{Kind: models.EventDeleted, EntityKind: models.EntityKindSecurityGroup, ID: id}, nil
}

func (p *projection) createSGRule(rule *models.SecurityGroupRule) (*models.Event, error) {
	if rule == nil || rule.ID == "" {
		return nil, errors.InvalidArgument("security group rule requires an id")
	}

	if _, exists := p.sgRules[rule.ID]; exists {
		return nil, errors.AlreadyExists("security group rule %s already exists", rule.ID)
	}

	if _, ok := p.sgs[rule.SGID]; !ok {
		return nil, errors.FailedPrecondition("rule %s references unknown security group %s", rule.ID, rule.SGID)
	}

	stored := *rule
	p.sgRules[rule.ID] = &stored

	return &models.Event{Kind: models.EventCreated, EntityKind: models.EntityKindSecurityGroupRule, ID: rule.ID, Payload: stored}, nil
}

func (p *projection) deleteSGRule(id string) (*models.Event, error) {
	if _, ok := p.sgRules[id]; !ok {
		return nil, errors.NotFound("security group rule %s not found", id)
	}

	delete(p.sgRules, id)

	return &models.Event{Kind: models.EventDeleted, EntityKind: models.EntityKindSecurityGroupRule, ID: id}, nil
}

func (p *projection) bindNicSG(b *models.NicSecurityGroupBinding) (*models.Event, error) {
	if b == nil || b.NicID == "" || b.SGID == "" {
		return nil, errors.InvalidArgument("binding requires nic_id and sg_id")
	}

	if _, ok := p.nics[b.NicID]; !ok {
		return nil, errors.FailedPrecondition("binding references unknown nic %s", b.NicID)
	}

	if _, ok := p.sgs[b.SGID]; !ok {
		return nil, errors.FailedPrecondition("binding references unknown security group %s", b.SGID)
	}

	key := bindingKey{NicID: b.NicID, SGID: b.SGID}
	if _, exists := p.bindings[key]; exists {
		return nil, errors.AlreadyExists("binding %s/%s already exists", b.NicID, b.SGID)
	}

	p.bindings[key] = struct{}{}

	return &models.Event{Kind: models.EventCreated, EntityKind: models.EntityKindNicSecurityGroupBinding, ID: b.NicID + "/" + b.SGID, Payload: *b}, nil
}

func (p *projection) unbindNicSG(b *models.NicSecurityGroupBinding) (*models.Event, error) {
	if b == nil {
		return nil, errors.InvalidArgument("binding requires nic_id and sg_id")
	}

	key := bindingKey{NicID: b.NicID, SGID: b.SGID}
	if _, exists := p.bindings[key]; !exists {
		return nil, errors.NotFound("binding %s/%s not found", b.NicID, b.SGID)
	}

	delete(p.bindings, key)

	return &models.Event{Kind: models.EventDeleted, EntityKind: models.EntityKindNicSecurityGroupBinding, ID: b.NicID + "/" + b.SGID}, nil
}

func (p *projection) createProject(proj *models.Project) (*models.Event, error) {
	if proj == nil || proj.ID == "" {
		return nil, errors.InvalidArgument("project requires an id")
	}

	if err := models.ValidateProjectID(proj.ID); err != nil {
		return nil, err
	}

	if _, exists := p.projects[proj.ID]; exists {
		return nil, errors.AlreadyExists("project %s already exists", proj.ID)
	}

	stored := *proj
	p.projects[proj.ID] = &stored

	return &models.Event{Kind: models.EventCreated, EntityKind: models.EntityKindProject, ID: proj.ID, NewVersion: 1, Payload: stored}, nil
}

func (p *projection) updateProject(proj *models.Project, expected *uint64) (*models.Event, error) {
	if proj == nil || proj.ID == "" {
		return nil, errors.InvalidArgument("project requires an id")
	}

	if _, ok := p.projects[proj.ID]; !ok {
		return nil, errors.NotFound("project %s not found", proj.ID)
	}

	// Projects carry no explicit version field in the data model, so
	// expected_version is ignored: an update only requires the project to
	// already exist.
	_ = expected

	stored := *proj
	p.projects[proj.ID] = &stored

	return &models.Event{Kind: models.EventUpdated, EntityKind: models.EntityKindProject, ID: proj.ID, Payload: stored}, nil
}

func (p *projection) deleteProject(id string) (*models.Event, error) {
	if _, ok := p.projects[id]; !ok {
		return nil, errors.NotFound("project %s not found", id)
	}

	delete(p.projects, id)

	return &models.Event{Kind: models.EventDeleted, EntityKind: models.EntityKindProject, ID: id}, nil
}
