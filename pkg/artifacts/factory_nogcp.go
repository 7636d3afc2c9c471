//go:build !gcp

package artifacts

import (
	"context"
	"fmt"
)

func newGCS(_ context.Context, _ Config) (Store, error) {
	return nil, fmt.Errorf("artifacts: gcs backend not enabled in this build (use -tags gcp)")
}
