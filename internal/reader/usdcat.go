package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/a2j/internal/logger"
)

// DefaultUsdcatTimeout bounds one usdcat invocation.
const DefaultUsdcatTimeout = 2 * time.Minute

// usdcat flattens binary USD and Alembic archives to USD ASCII by running the
// usdcat tool shipped with USD.
type usdcat struct {
	bin     string
	timeout time.Duration
}

func newUsdcat(bin string, timeout time.Duration) usdcat {
	if bin == "" {
		bin = "usdcat"
	}
	if timeout <= 0 {
		timeout = DefaultUsdcatTimeout
	}
	return usdcat{bin: bin, timeout: timeout}
}

// toUSDA returns the USD ASCII text of input.
func (u usdcat) toUSDA(ctx context.Context, input string) ([]byte, error) {
	path, err := exec.LookPath(u.bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrBackendUnavailable, u.bin, err)
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("usdcat timed out after %s", u.timeout)
		}
		return nil, fmt.Errorf("usdcat error: %w, output: %s", err, strings.TrimSpace(stderr.String()))
	}
	logger.Debug("usdcat finished",
		zap.String("input", input),
		zap.Int("bytes", stdout.Len()),
		zap.Duration("took", time.Since(start)))

	return stdout.Bytes(), nil
}
