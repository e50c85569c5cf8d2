package cloudhypervisor

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/MalteJ/mvirt/pkg/hypervisor/shared"
	"github.com/MalteJ/mvirt/pkg/models"
)

// State resolves the on-disk paths for one VM's cloud-hypervisor instance,
// rooted at <data-dir>/vm/<vm-id>/.
type State interface {
	Root() string
	APISocketPath() string
	SerialSocketPath() string
	CloudInitISOPath() string
	LogPath() string
	StdoutPath() string
	StderrPath() string
	PIDPath() string

	PID() (int, error)
	SetPID(pid int) error

	Delete() error
}

// NewState returns the State for vmid rooted under <dataDir>/vm/<vmid>.
func NewState(vmid models.VMID, dataDir string, fs afero.Fs) State {
	return &fsState{
		root: filepath.Join(dataDir, "vm", vmid.String()),
		fs:   fs,
	}
}

type fsState struct {
	root string
	fs   afero.Fs
}

func (s *fsState) Root() string { return s.root }

func (s *fsState) APISocketPath() string    { return filepath.Join(s.root, "api.sock") }
func (s *fsState) SerialSocketPath() string { return filepath.Join(s.root, "serial.sock") }
func (s *fsState) CloudInitISOPath() string { return filepath.Join(s.root, "cloudinit.iso") }
func (s *fsState) LogPath() string          { return filepath.Join(s.root, "cloudhypervisor.log") }
func (s *fsState) StdoutPath() string       { return filepath.Join(s.root, "cloudhypervisor.stdout.log") }
func (s *fsState) StderrPath() string       { return filepath.Join(s.root, "cloudhypervisor.stderr.log") }
func (s *fsState) PIDPath() string          { return filepath.Join(s.root, "cloudhypervisor.pid") }

func (s *fsState) PID() (int, error) {
	return shared.PIDReadFromFile(s.PIDPath(), s.fs)
}

func (s *fsState) SetPID(pid int) error {
	return shared.PIDWriteToFile(pid, s.PIDPath(), s.fs)
}

func (s *fsState) Delete() error {
	if err := s.fs.RemoveAll(s.root); err != nil {
		return fmt.Errorf("removing state dir %s: %w", s.root, err)
	}

	return nil
}
