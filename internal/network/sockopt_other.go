//go:build !linux && !windows

package network

import "syscall"

func setReuseAddr(string, string, syscall.RawConn) error { return nil }
