//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux backend for the reactor's poller interface, grounded on the
// teacher's reactor/epoll_reactor.go EpollCreate1/EpollCtl/EpollWait
// sequence, ported from the stdlib syscall package to golang.org/x/sys/unix
// (per the domain stack's single raw-syscall dependency) and edge-triggered
// per spec.md §4.4.
package reactor

import (
	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd int
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd}, nil
}

func toEpollEvents(i Interest) uint32 {
	var ev uint32 = unix.EPOLLET // edge-triggered
	if i&Read != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	if i&Error != 0 {
		ev |= unix.EPOLLERR | unix.EPOLLHUP
	}
	return ev
}

func fromEpollEvents(ev uint32) Interest {
	var i Interest
	if ev&unix.EPOLLIN != 0 {
		i |= Read
	}
	if ev&unix.EPOLLOUT != 0 {
		i |= Write
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		i |= Error
	}
	return i
}

func (p *epollPoller) add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(timeoutMs int, out []readyEvent) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		out[i] = readyEvent{
			fd:    int(raw[i].Fd),
			ready: fromEpollEvents(raw[i].Events),
		}
	}
	return n, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
