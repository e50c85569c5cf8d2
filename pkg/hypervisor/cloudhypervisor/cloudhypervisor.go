// Package cloudhypervisor drives the cloud-hypervisor binary: building its
// bit-exact command line, spawning and reaping the child process, and
// talking to its control-API socket for graceful shutdown and liveness
// probing.
package cloudhypervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/MalteJ/mvirt/pkg/log"
	"github.com/MalteJ/mvirt/pkg/models"
)

const dataFilePerm = 0o644

// Driver wraps invocation of one cloud-hypervisor binary.
type Driver struct {
	Binary string
	Fs     afero.Fs
}

// New returns a Driver for the given cloud-hypervisor binary path.
func New(binary string, fs afero.Fs) *Driver {
	return &Driver{Binary: binary, Fs: fs}
}

// BuildArgs renders the bit-exact cloud-hypervisor argument list for vm,
// attached to tap, with the state paths resolved from state.
func BuildArgs(vm *models.VM, state State, tap string) []string {
	args := []string{
		"--api-socket", state.APISocketPath(),
		"--serial", "socket=" + state.SerialSocketPath(),
		"--console", "off",
		"--kernel", vm.Config.Kernel,
		"--cpus", fmt.Sprintf("boot=%d", vm.Config.VCPUs),
		"--memory", fmt.Sprintf("size=%dM", vm.Config.MemoryMB),
	}

	disks := make([]string, 0, len(vm.Config.Disks)+1)
	for _, d := range vm.Config.Disks {
		spec := "path=" + d.Path
		if d.ReadOnly {
			spec += ",readonly=on"
		}

		disks = append(disks, spec)
	}

	if cloudInitRequired(vm) {
		disks = append(disks, "path="+state.CloudInitISOPath()+",readonly=on")
	}

	args = append(args, "--disk")
	args = append(args, disks...)

	args = append(args, "--net", "tap="+tap)

	if vm.Config.KernelArgs != "" {
		args = append(args, "--cmdline", vm.Config.KernelArgs)
	}

	return args
}

func cloudInitRequired(vm *models.VM) bool {
	return vm.Config.CloudInit != nil &&
		(vm.Config.CloudInit.UserData != "" || vm.Config.CloudInit.MetaData != "" || vm.Config.CloudInit.NetworkConfig != "")
}

// Spawn starts the cloud-hypervisor child process for vm attached to tap,
// redirecting stdout/stderr under state's directory, and returns the
// running *os.Process. The caller owns persisting the resulting PID.
func (d *Driver) Spawn(ctx context.Context, vm *models.VM, state State, tap string) (*os.Process, error) {
	logger := log.GetLogger(ctx).WithFields(logrus.Fields{
		"component": "cloudhypervisor",
		"vm_id":     vm.ID.String(),
		"tap":       tap,
	})

	if err := d.Fs.MkdirAll(state.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", state.Root(), err)
	}

	args := BuildArgs(vm, state, tap)
	logger.WithField("args", args).Debug("spawning cloud-hypervisor")

	stdout, err := d.Fs.OpenFile(state.StdoutPath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, dataFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening stdout log %s: %w", state.StdoutPath(), err)
	}

	stderr, err := d.Fs.OpenFile(state.StderrPath(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, dataFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening stderr log %s: %w", state.StderrPath(), err)
	}

	cmd := exec.Command(d.Binary, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = &bytes.Buffer{}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting cloud-hypervisor: %w", err)
	}

	// The caller (pkg/supervisor's process watcher) owns reaping via
	// Process.Wait; Spawn must not also wait, or the watcher's call would
	// ever only see "no child processes".
	return cmd.Process, nil
}

// WaitForAPISocket polls the API socket until it accepts connections and
// responds to a ping, or the context is done.
func (d *Driver) WaitForAPISocket(ctx context.Context, state State) error {
	client := newAPIClient(state.APISocketPath())

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := client.Ping(ctx); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for api socket %s: %w", state.APISocketPath(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Shutdown requests a graceful ACPI shutdown over the API socket.
func (d *Driver) Shutdown(ctx context.Context, state State) error {
	return newAPIClient(state.APISocketPath()).Shutdown(ctx)
}

// Ping probes the API socket, used during crash recovery to verify an
// adopted process is actually serving the expected hypervisor API.
func (d *Driver) Ping(ctx context.Context, state State) error {
	return newAPIClient(state.APISocketPath()).Ping(ctx)
}

// Version runs "<binary> --version" and returns its trimmed stdout, e.g.
// "cloud-hypervisor v34.0". Used once at daemon startup for GetSystemInfo.
func (d *Driver) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, d.Binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("running %s --version: %w", d.Binary, err)
	}

	return strings.TrimSpace(string(out)), nil
}
