//go:build unix

package main

import "syscall"

// detached puts the daemon in its own session so it outlives the terminal.
func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
