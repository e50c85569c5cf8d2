package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/models"
)

// UpsertVM inserts vm or overwrites the row with the same id.
func (s *Store) UpsertVM(vm *models.VM) error {
	configJSON, err := json.Marshal(vm.Config)
	if err != nil {
		return fmt.Errorf("marshaling vm config: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO vms (id, name, project_id, state, config_json, created_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			project_id = excluded.project_id,
			state = excluded.state,
			config_json = excluded.config_json,
			created_at = excluded.created_at,
			started_at = excluded.started_at
	`, vm.ID.String(), vm.Name, vm.ProjectID, string(vm.State), string(configJSON), vm.CreatedAt.Unix(), unixOrZero(vm.StartedAt))
	if err != nil {
		return fmt.Errorf("upserting vm %s: %w", vm.ID, err)
	}

	return nil
}

// SetState performs a compare-and-swap state transition: the update only
// takes effect if the row's current state equals from. Returns Conflict if
// it did not.
func (s *Store) SetState(id models.VMID, from, to models.VMState) error {
	res, err := s.db.Exec(`UPDATE vms SET state = ? WHERE id = ? AND state = ?`,
		string(to), id.String(), string(from))
	if err != nil {
		return fmt.Errorf("updating state of vm %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for vm %s: %w", id, err)
	}

	if n == 0 {
		return errors.Conflict("vm %s is not in state %s", id, from)
	}

	return nil
}

// GetVM returns the VM with id, or NotFound.
func (s *Store) GetVM(id models.VMID) (*models.VM, error) {
	row := s.db.QueryRow(`SELECT id, name, project_id, state, config_json, created_at, started_at FROM vms WHERE id = ?`, id.String())

	vm, err := scanVM(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("vm %s not found", id)
	} else if err != nil {
		return nil, fmt.Errorf("getting vm %s: %w", id, err)
	}

	return vm, nil
}

// ListVMs returns every VM row, ordered by id.
func (s *Store) ListVMs() ([]*models.VM, error) {
	rows, err := s.db.Query(`SELECT id, name, project_id, state, config_json, created_at, started_at FROM vms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing vms: %w", err)
	}
	defer rows.Close()

	var out []*models.VM

	for rows.Next() {
		vm, err := scanVM(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning vm row: %w", err)
		}

		out = append(out, vm)
	}

	return out, rows.Err()
}

// DeleteVM removes the VM row with id. Caller must have already verified
// the VM is Stopped.
func (s *Store) DeleteVM(id models.VMID) error {
	if _, err := s.db.Exec(`DELETE FROM vms WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("deleting vm %s: %w", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVM(row rowScanner) (*models.VM, error) {
	var (
		id, name, projectID, state, configJSON string
		createdAt, startedAt                   int64
	)

	if err := row.Scan(&id, &name, &projectID, &state, &configJSON, &createdAt, &startedAt); err != nil {
		return nil, err
	}

	var cfg models.VMConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config for vm %s: %w", id, err)
	}

	vm := &models.VM{
		ID:        models.VMID(id),
		Name:      name,
		ProjectID: projectID,
		State:     models.VMState(state),
		Config:    cfg,
		CreatedAt: unixTime(createdAt),
	}

	if startedAt != 0 {
		vm.StartedAt = unixTime(startedAt)
	}

	return vm, nil
}
