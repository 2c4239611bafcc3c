// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/feedrank/feedrank/internal/logging"
	"github.com/feedrank/feedrank/internal/model"
	json "github.com/goccy/go-json"
)

// leaseToken is the JSON body of a lease file. It identifies the holder
// so operators can see who is training and stale leases can be detected.
type leaseToken struct {
	Owner      string    `json:"owner"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lease is an exclusive filesystem lock guarding training runs. The lock
// file is created with O_CREATE|O_EXCL so exactly one process wins even
// when several start simultaneously.
type Lease struct {
	path  string
	token leaseToken
}

// AcquireLease attempts to take the lease at path. When the file already
// exists, a holder older than staleAfter is presumed crashed: its file is
// removed and acquisition retried once. A live holder yields ErrLeaseHeld.
func AcquireLease(path, owner string, staleAfter time.Duration) (*Lease, error) {
	lease, err := tryAcquire(path, owner)
	if err == nil {
		return lease, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: create lease: %v", model.ErrStorage, err)
	}

	holder, readErr := readToken(path)
	if readErr != nil {
		// Unreadable lease files are treated as stale; a partial write
		// from a crashed holder should not block training forever.
		logging.Warn().Str("lease", path).Err(readErr).Msg("Unreadable lease file, reclaiming")
	} else if time.Since(holder.AcquiredAt) <= staleAfter {
		return nil, fmt.Errorf("%w: held by %s (pid %d) since %s",
			model.ErrLeaseHeld, holder.Owner, holder.PID, holder.AcquiredAt.Format(time.RFC3339))
	} else {
		logging.Warn().
			Str("lease", path).
			Str("holder", holder.Owner).
			Time("acquired_at", holder.AcquiredAt).
			Msg("Reclaiming stale lease")
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: remove stale lease: %v", model.ErrStorage, err)
	}

	lease, err = tryAcquire(path, owner)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// Another process won the reclaim race.
			return nil, model.ErrLeaseHeld
		}
		return nil, fmt.Errorf("%w: create lease: %v", model.ErrStorage, err)
	}
	return lease, nil
}

// tryAcquire publishes the lease file exclusively. The token is written to
// a private temp file and hard-linked into place, so the lease path only
// ever appears with its full token: a concurrent contender never reads a
// torn write and mistakes a live lease for a stale one.
func tryAcquire(path, owner string) (*Lease, error) {
	token := leaseToken{
		Owner:      owner,
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
	}

	data, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".lease-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // cleanup path
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	// Link fails with ErrExist when another holder already owns the path.
	if err := os.Link(tmp.Name(), path); err != nil {
		return nil, err
	}

	return &Lease{path: path, token: token}, nil
}

// readToken decodes an existing lease file.
func readToken(path string) (*leaseToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token leaseToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	if token.AcquiredAt.IsZero() {
		return nil, fmt.Errorf("lease token missing acquired_at")
	}
	return &token, nil
}

// Release removes the lease file. Releasing an already-removed lease is
// not an error.
func (l *Lease) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: release lease: %v", model.ErrStorage, err)
	}
	return nil
}

// Owner returns the holder recorded in the lease.
func (l *Lease) Owner() string {
	return l.token.Owner
}
