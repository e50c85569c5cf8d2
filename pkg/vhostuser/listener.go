package vhostuser

import (
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
)

// SocketPath returns the conventional vhost-user control socket path for
// one NIC of a VM, rooted under the VM's state directory.
func SocketPath(vmStateDir, nicID string) string {
	return vmStateDir + "/vhost-" + nicID + ".sock"
}

// Listener accepts the single vhost-user connection a VM's hypervisor
// process makes for one NIC and hands it off as a Backend.
type Listener struct {
	path string
	ln   *net.UnixListener
	log  *logrus.Entry
}

// Listen creates (replacing any stale socket file) and binds the AF_UNIX
// socket at path.
func Listen(path string, logger *logrus.Entry) (*Listener, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("vhostuser: removing stale socket %s: %w", path, err)
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("vhostuser: listening on %s: %w", path, err)
	}

	return &Listener{path: path, ln: ln, log: logger}, nil
}

// Accept blocks for the hypervisor's single vhost-user connection for
// nicID and returns a Backend ready to Run.
func (l *Listener) Accept(nicID string) (*Backend, error) {
	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, fmt.Errorf("vhostuser: accepting on %s: %w", l.path, err)
	}

	return NewBackend(nicID, conn, l.log), nil
}

// Close stops accepting and removes the socket file.
func (l *Listener) Close() error {
	if err := l.ln.Close(); err != nil {
		return err
	}

	return os.RemoveAll(l.path)
}
