// Package shared holds helpers common to hypervisor drivers: PID file
// bookkeeping and crash-recovery liveness checks.
package shared

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"
)

const filePerm = 0o644

// PIDReadFromFile reads and parses the PID stored at path.
func PIDReadFromFile(path string, fs afero.Fs) (int, error) {
	file, err := fs.OpenFile(path, os.O_RDONLY, filePerm)
	if err != nil {
		return 0, fmt.Errorf("opening pid file %s: %w", path, err)
	}
	defer file.Close()

	buf, err := io.ReadAll(file)
	if err != nil {
		return 0, fmt.Errorf("reading pid file %s: %w", path, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %s: %w", path, err)
	}

	return pid, nil
}

// PIDWriteToFile persists pid at path, truncating any prior content.
func PIDWriteToFile(pid int, path string, fs afero.Fs) error {
	file, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("opening pid file %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Write([]byte(strconv.Itoa(pid))); err != nil {
		return fmt.Errorf("writing pid file %s: %w", path, err)
	}

	return nil
}

// ProcessAlive reports whether pid names a live process, by sending it the
// null signal (this never actually signals the process; it only probes
// /proc for existence and permission).
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return proc.Signal(syscall.Signal(0)) == nil
}

// CmdlineContains reports whether the process named by pid was launched
// with needle somewhere in its argv, read from /proc/<pid>/cmdline. Used at
// crash-recovery time to make sure an adopted PID is actually "our" cloud
// hypervisor instance and not a PID that got recycled by the kernel.
func CmdlineContains(pid int, needle string) bool {
	buf, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return false
	}

	return strings.Contains(string(buf), needle)
}
