package store

import (
	"database/sql"
	"fmt"

	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/models"
)

// InsertRuntime records a newly spawned hypervisor process. Overwrites any
// stale row for the same VM (e.g. left behind by an unclean crash).
func (s *Store) InsertRuntime(rt *models.VmRuntime) error {
	_, err := s.db.Exec(`
		INSERT INTO vm_runtime (vm_id, pid, api_socket, serial_socket, tap_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vm_id) DO UPDATE SET
			pid = excluded.pid,
			api_socket = excluded.api_socket,
			serial_socket = excluded.serial_socket,
			tap_name = excluded.tap_name
	`, rt.VMID.String(), rt.PID, rt.APISocket, rt.SerialSocket, rt.TapName)
	if err != nil {
		return fmt.Errorf("inserting runtime for vm %s: %w", rt.VMID, err)
	}

	return nil
}

// DeleteRuntime removes the runtime row for id, if any.
func (s *Store) DeleteRuntime(id models.VMID) error {
	if _, err := s.db.Exec(`DELETE FROM vm_runtime WHERE vm_id = ?`, id.String()); err != nil {
		return fmt.Errorf("deleting runtime for vm %s: %w", id, err)
	}

	return nil
}

// GetRuntime returns the runtime row for id, or NotFound.
func (s *Store) GetRuntime(id models.VMID) (*models.VmRuntime, error) {
	row := s.db.QueryRow(`SELECT vm_id, pid, api_socket, serial_socket, tap_name FROM vm_runtime WHERE vm_id = ?`, id.String())

	rt, err := scanRuntime(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("runtime for vm %s not found", id)
	} else if err != nil {
		return nil, fmt.Errorf("getting runtime for vm %s: %w", id, err)
	}

	return rt, nil
}

// ListRuntime returns every runtime row, used at startup for crash recovery.
func (s *Store) ListRuntime() ([]*models.VmRuntime, error) {
	rows, err := s.db.Query(`SELECT vm_id, pid, api_socket, serial_socket, tap_name FROM vm_runtime`)
	if err != nil {
		return nil, fmt.Errorf("listing runtime rows: %w", err)
	}
	defer rows.Close()

	var out []*models.VmRuntime

	for rows.Next() {
		rt, err := scanRuntime(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning runtime row: %w", err)
		}

		out = append(out, rt)
	}

	return out, rows.Err()
}

func scanRuntime(row rowScanner) (*models.VmRuntime, error) {
	var (
		vmID                    string
		pid                     int
		apiSocket, serialSocket string
		tapName                 string
	)

	if err := row.Scan(&vmID, &pid, &apiSocket, &serialSocket, &tapName); err != nil {
		return nil, err
	}

	return &models.VmRuntime{
		VMID:         models.VMID(vmID),
		PID:          pid,
		APISocket:    apiSocket,
		SerialSocket: serialSocket,
		TapName:      tapName,
	}, nil
}
