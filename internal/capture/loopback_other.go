//go:build !linux && !windows

package capture

import (
	"context"
	"fmt"
	"runtime"
)

func findLoopback(ctx context.Context, opts LoopbackOptions) (LoopbackDevice, error) {
	return nil, fmt.Errorf("%w: loopback capture is not supported on %s", ErrNoLoopbackDevice, runtime.GOOS)
}
