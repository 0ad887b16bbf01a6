package reader

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Options configures reader construction.
type Options struct {
	// UsdcatPath is the usdcat executable used for .usdc and .abc files.
	UsdcatPath    string
	UsdcatTimeout time.Duration
	// FallbackCharset decodes Maya ASCII files that are not UTF-8 and
	// declare no codeset.
	FallbackCharset string
}

// New opens path with the reader matching its extension.
func New(ctx context.Context, path string, opts Options) (Reader, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening scene: %w", err)
	}

	var r Reader
	switch format {
	case FormatAlembic:
		r, err = OpenAlembic(ctx, path, opts)
	case FormatUSD:
		r, err = OpenUSD(ctx, path, opts)
	case FormatMaya:
		r, err = OpenMaya(path, opts)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}
