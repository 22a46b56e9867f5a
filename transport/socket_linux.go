//go:build linux
// +build linux

// File: transport/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP socket helpers: listening sockets, outbound
// connects, and the accept path. All descriptors are created with
// SOCK_NONBLOCK and SOCK_CLOEXEC so the dispatcher never blocks on I/O.

package transport

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

const listenBacklog = 128

// sockaddrFor builds a sockaddr for ip:port. An empty ip means all
// interfaces.
func sockaddrFor(ip string, port int) (unix.Sockaddr, int, error) {
	if ip == "" {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET, nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, 0, fmt.Errorf("invalid ip %q", ip)
	}
	if v4 := parsed.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], parsed.To16())
	return sa, unix.AF_INET6, nil
}

// addrString renders a peer sockaddr as "ip:port".
func addrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return ""
	}
}

// SetNoDelay disables Nagle on fd.
func SetNoDelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

// Listen creates a non-blocking listening socket bound to ip:port.
func Listen(ip string, port int) (int, error) {
	sa, family, err := sockaddrFor(ip, port)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket create: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s:%d: %w", ip, port, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// ListenPort reports the local port a listening socket was bound to,
// resolving port 0 requests.
func ListenPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("getsockname: %w", err)
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port, nil
	case *unix.SockaddrInet6:
		return a.Port, nil
	}
	return 0, fmt.Errorf("getsockname: unexpected family")
}

// Connect resolves host and starts a non-blocking connect to
// host:port. The in-progress state is not an error; the descriptor
// polls writable once the connect settles, and ConnectError reports
// the outcome.
func Connect(host string, port int) (int, error) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		return -1, fmt.Errorf("resolve %s: %w", host, err)
	}
	var firstErr error
	for _, addr := range addrs {
		sa, family, err := sockaddrFor(addr, port)
		if err != nil {
			continue
		}
		fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
		if err != nil {
			firstErr = err
			continue
		}
		_ = SetNoDelay(fd)
		err = unix.Connect(fd, sa)
		if err == nil || err == unix.EINPROGRESS {
			return fd, nil
		}
		unix.Close(fd)
		firstErr = err
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("no usable address for %s", host)
	}
	return -1, fmt.Errorf("connect %s:%d: %w", host, port, firstErr)
}

// ConnectError drains SO_ERROR after a non-blocking connect settled.
func ConnectError(fd int) error {
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt SO_ERROR: %w", err)
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}

// Accept takes one pending connection off a listening socket. Returns
// ErrWouldBlock when the backlog is empty.
func Accept(lfd int) (int, string, error) {
	nfd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return -1, "", ErrWouldBlock
		}
		return -1, "", fmt.Errorf("accept: %w", err)
	}
	_ = SetNoDelay(nfd)
	return nfd, addrString(sa), nil
}

// CloseFD closes a raw descriptor.
func CloseFD(fd int) error {
	return unix.Close(fd)
}
