package artifacts

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Mirror pairs a local store with a remote archive. Writes land
// locally first and then mirror to the archive under a token-bucket
// rate limit, so archiving a large evidence batch cannot saturate the
// uplink. Reads prefer the local store and backfill it on an archive
// hit.
type Mirror struct {
	local   Store
	archive Store
	limiter *rate.Limiter
}

// NewMirror builds a mirror that allows uploadsPerSec remote writes
// with the given burst.
func NewMirror(local, archive Store, uploadsPerSec float64, burst int) *Mirror {
	return &Mirror{
		local:   local,
		archive: archive,
		limiter: rate.NewLimiter(rate.Limit(uploadsPerSec), burst),
	}
}

// Store persists locally, then mirrors. A blob the archive already
// holds consumes no rate budget. An archive failure fails the write;
// evidence that claims to be archived must actually be.
func (m *Mirror) Store(ctx context.Context, data []byte) (string, error) {
	hash, err := m.local.Store(ctx, data)
	if err != nil {
		return "", err
	}

	if ok, err := m.archive.Exists(ctx, hash); err == nil && ok {
		return hash, nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("artifacts: mirror rate wait: %w", err)
	}
	if _, err := m.archive.Store(ctx, data); err != nil {
		return "", fmt.Errorf("artifacts: mirror to archive: %w", err)
	}
	return hash, nil
}

// Get reads from the local store first and falls back to the archive,
// backfilling the local copy on a hit.
func (m *Mirror) Get(ctx context.Context, hash string) ([]byte, error) {
	data, err := m.local.Get(ctx, hash)
	if err == nil {
		return data, nil
	}

	data, archiveErr := m.archive.Get(ctx, hash)
	if archiveErr != nil {
		return nil, err
	}
	if _, err := m.local.Store(ctx, data); err != nil {
		return nil, fmt.Errorf("artifacts: backfill local: %w", err)
	}
	return data, nil
}

func (m *Mirror) Exists(ctx context.Context, hash string) (bool, error) {
	if ok, err := m.local.Exists(ctx, hash); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return m.archive.Exists(ctx, hash)
}

// Delete removes the blob from both sides.
func (m *Mirror) Delete(ctx context.Context, hash string) error {
	if err := m.local.Delete(ctx, hash); err != nil {
		return err
	}
	return m.archive.Delete(ctx, hash)
}
