package store

import "fmt"

// migration is one forward-only, numbered schema step. Migrations never
// change once released; fixes land as a new, higher-numbered migration.
type migration struct {
	version int
	stmts   []string
}

// migrations covers the local persistence tables: vms and vm_runtime.
// vm_runtime carries no foreign key to vms so ephemeral pod-style VMs whose
// definition lives only in the replicated store can still have a runtime row.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE vms (
				id           TEXT PRIMARY KEY,
				name         TEXT NOT NULL DEFAULT '',
				state        TEXT NOT NULL,
				config_json  TEXT NOT NULL,
				created_at   INTEGER NOT NULL,
				started_at   INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE vm_runtime (
				vm_id         TEXT PRIMARY KEY,
				pid           INTEGER NOT NULL,
				api_socket    TEXT NOT NULL,
				serial_socket TEXT NOT NULL
			)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`ALTER TABLE vm_runtime ADD COLUMN tap_name TEXT NOT NULL DEFAULT ''`,
		},
	},
	{
		version: 3,
		stmts: []string{
			`ALTER TABLE vms ADD COLUMN project_id TEXT NOT NULL DEFAULT ''`,
		},
	},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, m.version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.version, err)
		}

		if applied {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("starting transaction for migration %d: %w", m.version, err)
		}

		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("applying migration %d: %w", m.version, err)
			}
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}
