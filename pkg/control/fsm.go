package control

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"
	"github.com/sirupsen/logrus"

	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/watch"
)

// FSM adapts projection to hashicorp/raft.FSM. Apply, Snapshot and Restore
// all run on the Raft runtime's single FSM goroutine; projection's own lock
// additionally protects reads issued concurrently from gRPC handlers.
type FSM struct {
	log *logrus.Entry
	bus *watch.Bus

	proj *projection
}

// NewFSM returns an FSM with an empty projection, broadcasting applied
// mutations on bus (nil disables broadcast, useful in tests).
func NewFSM(bus *watch.Bus, log *logrus.Entry) *FSM {
	return &FSM{
		log:  log,
		bus:  bus,
		proj: newProjection(),
	}
}

// Apply decodes raftLog.Data as a Command and runs it through the
// projection. The returned value is always a Response or an error; hashicorp/raft
// delivers it back to the node that issued ApplyLog.
func (f *FSM) Apply(raftLog *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(raftLog.Data, &cmd); err != nil {
		return fmt.Errorf("control: decoding command at index %d: %w", raftLog.Index, err)
	}

	resp, err := f.proj.apply(cmd, f.bus)
	if err != nil {
		if f.log != nil {
			f.log.WithError(err).WithField("op", cmd.Op).Debug("command rejected")
		}

		return err
	}

	return resp
}

// snapshotData is the wire form of a full projection, used by both
// Snapshot/Persist and Restore.
type snapshotData struct {
	Networks map[string]*models.Network            `json:"networks"`
	Nics     map[string]*models.NIC                 `json:"nics"`
	SGs      map[string]*models.SecurityGroup        `json:"security_groups"`
	SGRules  map[string]*models.SecurityGroupRule     `json:"security_group_rules"`
	Bindings []bindingKey                             `json:"bindings"`
	Projects map[string]*models.Project               `json:"projects"`
}

// fsmSnapshot holds a point-in-time copy of the projection taken under lock
// in Snapshot; Persist serializes it without holding the FSM lock so log
// application can continue concurrently.
type fsmSnapshot struct {
	data snapshotData
}

// Snapshot captures the current projection. The heavy serialization work
// happens later in fsmSnapshot.Persist, off the critical apply path.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.proj.mu.RLock()
	defer f.proj.mu.RUnlock()

	data := snapshotData{
		Networks: make(map[string]*models.Network, len(f.proj.networks)),
		Nics:     make(map[string]*models.NIC, len(f.proj.nics)),
		SGs:      make(map[string]*models.SecurityGroup, len(f.proj.sgs)),
		SGRules:  make(map[string]*models.SecurityGroupRule, len(f.proj.sgRules)),
		Projects: make(map[string]*models.Project, len(f.proj.projects)),
	}

	for id, n := range f.proj.networks {
		cp := *n
		data.Networks[id] = &cp
	}

	for id, n := range f.proj.nics {
		cp := *n
		data.Nics[id] = &cp
	}

	for id, sg := range f.proj.sgs {
		cp := *sg
		data.SGs[id] = &cp
	}

	for id, r := range f.proj.sgRules {
		cp := *r
		data.SGRules[id] = &cp
	}

	for id, p := range f.proj.projects {
		cp := *p
		data.Projects[id] = &cp
	}

	for key := range f.proj.bindings {
		data.Bindings = append(data.Bindings, key)
	}

	return &fsmSnapshot{data: data}, nil
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	enc := json.NewEncoder(sink)
	if err := enc.Encode(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("control: encoding snapshot: %w", err)
	}

	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// Restore replaces the projection wholesale from a snapshot written by
// Persist. Called by hashicorp/raft before the FSM serves any Apply calls.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var data snapshotData
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("control: decoding snapshot: %w", err)
	}

	proj := newProjection()

	for id, n := range data.Networks {
		proj.networks[id] = n
		proj.networkNames[n.Name] = id
		proj.nicsByNet[id] = make(map[string]struct{})
	}

	for id, n := range data.Nics {
		proj.nics[id] = n

		if _, ok := proj.nicsByNet[n.NetworkID]; !ok {
			proj.nicsByNet[n.NetworkID] = make(map[string]struct{})
		}

		proj.nicsByNet[n.NetworkID][id] = struct{}{}
	}

	for id, sg := range data.SGs {
		proj.sgs[id] = sg
	}

	for id, r := range data.SGRules {
		proj.sgRules[id] = r
	}

	for id, p := range data.Projects {
		proj.projects[id] = p
	}

	for _, key := range data.Bindings {
		proj.bindings[key] = struct{}{}
	}

	f.proj.mu.Lock()
	f.proj.networks = proj.networks
	f.proj.nics = proj.nics
	f.proj.sgs = proj.sgs
	f.proj.sgRules = proj.sgRules
	f.proj.bindings = proj.bindings
	f.proj.projects = proj.projects
	f.proj.networkNames = proj.networkNames
	f.proj.nicsByNet = proj.nicsByNet
	f.proj.mu.Unlock()

	return nil
}
