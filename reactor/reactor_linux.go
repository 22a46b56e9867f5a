//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// linuxReactor is an epoll-based readiness multiplexer. Registration is
// level-triggered: the dispatcher drains what it can and relies on the
// next wait to report leftovers.
type linuxReactor struct {
	epfd int
}

// New constructs the platform reactor.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &linuxReactor{epfd: epfd}, nil
}

func epollBits(interest Interest) uint32 {
	var bits uint32
	if interest&InterestRead != 0 {
		bits |= unix.EPOLLIN
	}
	if interest&InterestWrite != 0 {
		bits |= unix.EPOLLOUT
	}
	return bits
}

// Add registers fd with the given interest set.
func (r *linuxReactor) Add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: epollBits(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Modify replaces the interest set of a registered fd.
func (r *linuxReactor) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: epollBits(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Remove unregisters fd.
func (r *linuxReactor) Remove(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait blocks up to timeoutMs and fills events with ready descriptors.
func (r *linuxReactor) Wait(events []Event, timeoutMs int) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(r.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal, not an error
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		var t EventType
		if raw[i].Events&unix.EPOLLIN != 0 {
			t |= EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			t |= EventWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			t |= EventError
		}
		events[i] = Event{FD: int(raw[i].Fd), Type: t}
	}
	return n, nil
}

// Close releases the epoll instance.
func (r *linuxReactor) Close() error {
	return unix.Close(r.epfd)
}
