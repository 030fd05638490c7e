package network

import (
	"context"
	"fmt"
	"net"
)

// Listen opens a TCP listener for the control API. The socket is
// marked SO_REUSEADDR where supported so a restarted process can rebind
// while the old socket sits in TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}
