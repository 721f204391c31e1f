package run

import (
	"bytes"
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
)

func TestRotateOnHangup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rotateErr error
		want      string
	}{
		{"rotates", nil, "log file rotated"},
		{"rotation failure is logged", errors.NewStd("disk full"), "failed to rotate log file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			log := logger.NewSlogLogger(&buf, logger.LogLevelInfo, nil)
			sigs := make(chan os.Signal, 1)
			var rotations atomic.Int32

			ctx, cancel := context.WithCancel(t.Context())
			done := make(chan struct{})
			go func() {
				defer close(done)
				rotateOnHangup(ctx, sigs, func() error {
					rotations.Add(1)
					return tt.rotateErr
				}, log)
			}()

			sigs <- syscall.SIGHUP
			sigs <- syscall.SIGHUP
			require.Eventually(t, func() bool { return rotations.Load() == 2 }, time.Second, 5*time.Millisecond)

			cancel()
			<-done
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
