package vhostuser

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const epollMaxEvents = 8

// Run drives the backend's event loop until the control socket closes or
// stop is closed: it polls the control socket and the TX kick eventfd via
// epoll_wait, with no thread-per-queue. Suspension points are exactly
// epoll_wait itself.
func (b *Backend) Run(stop <-chan struct{}) error {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("vhostuser: epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	controlFD, err := controlSocketFD(b.conn)
	if err != nil {
		return err
	}

	if err := epollAdd(epfd, controlFD); err != nil {
		return err
	}

	registeredKick := -1

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if kick := b.rings[queueTX].kickFD; kick >= 0 && kick != registeredKick {
			if err := epollAdd(epfd, kick); err != nil {
				b.log.WithError(err).Warn("registering tx kick eventfd failed")
			} else {
				registeredKick = kick
			}
		}

		events := make([]unix.EpollEvent, epollMaxEvents)

		n, err := unix.EpollWait(epfd, events, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}

			return fmt.Errorf("vhostuser: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)

			switch fd {
			case controlFD:
				if err := b.handleOneMessage(); err != nil {
					b.log.WithError(err).Warn("control message handling failed, closing backend")

					return err
				}
			case registeredKick:
				drainEventFD(fd)
				b.processTX()
			}
		}
	}
}

func controlSocketFD(conn *net.UnixConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("vhostuser: getting raw control socket: %w", err)
	}

	var fd int

	ctrlErr := raw.Control(func(f uintptr) {
		fd = int(f)
	})
	if ctrlErr != nil {
		return -1, fmt.Errorf("vhostuser: control socket fd: %w", ctrlErr)
	}

	return fd, nil
}

func epollAdd(epfd, fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}

	return unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func drainEventFD(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}

// handleOneMessage reads and dispatches a single control message,
// including any SCM_RIGHTS-passed fds, replying when the message type
// carries a reply payload or the frontend set the need-reply flag.
func (b *Backend) handleOneMessage() error {
	hdrBuf := make([]byte, headerSize)
	oob := make([]byte, unix.CmsgSpace(4*4)) // room for up to 4 fds

	n, oobn, _, _, err := b.conn.ReadMsgUnix(hdrBuf, oob)
	if err != nil {
		return fmt.Errorf("vhostuser: reading message header: %w", err)
	}

	if n < headerSize {
		return fmt.Errorf("vhostuser: short header read, got %d bytes", n)
	}

	h, err := decodeHeader(hdrBuf)
	if err != nil {
		return err
	}

	fds, err := parseFDs(oob[:oobn])
	if err != nil {
		return err
	}

	payload := make([]byte, h.size)

	if h.size > 0 {
		pn, err := b.conn.Read(payload)
		if err != nil {
			return fmt.Errorf("vhostuser: reading payload: %w", err)
		}

		payload = payload[:pn]
	}

	reply, err := b.handleMessage(h, payload, fds)
	if err != nil {
		return fmt.Errorf("vhostuser: handling message %d: %w", h.request, err)
	}

	const flagNeedReply = 0x8
	if reply == nil && h.flags&(flagReply|flagNeedReply) == 0 {
		// No reply payload for this message and none requested.
		return nil
	}

	if reply == nil && h.flags&flagNeedReply != 0 {
		// REPLY_ACK: a u64 status, zero for success.
		reply = encodeU64(0)
	}

	return b.sendReply(h.request, reply)
}

func (b *Backend) sendReply(request messageType, payload []byte) error {
	hdr := replyHeader(request, len(payload))

	if _, err := b.conn.Write(hdr.encode()); err != nil {
		return fmt.Errorf("vhostuser: writing reply header: %w", err)
	}

	if len(payload) == 0 {
		return nil
	}

	_, err := b.conn.Write(payload)
	if err != nil {
		return fmt.Errorf("vhostuser: writing reply payload: %w", err)
	}

	return nil
}

func parseFDs(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("vhostuser: parsing control message: %w", err)
	}

	var fds []int

	for _, c := range cmsgs {
		rights, err := unix.ParseUnixRights(&c)
		if err != nil {
			continue
		}

		fds = append(fds, rights...)
	}

	return fds, nil
}
