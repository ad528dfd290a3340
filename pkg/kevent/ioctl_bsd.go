//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package kevent

import "golang.org/x/sys/unix"

// ioctlReadable reports the bytes queued for reading on a descriptor.
const ioctlReadable = unix.FIONREAD
