//go:build linux

package capture

import "context"

func findLoopback(ctx context.Context, opts LoopbackOptions) (LoopbackDevice, error) {
	return findPulseMonitor(ctx, opts)
}
