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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/feedrank/feedrank/internal/model"
	json "github.com/goccy/go-json"
)

func leasePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "hybrid.gob.gz.lock")
}

func TestAcquireAndRelease(t *testing.T) {
	path := leasePath(t)

	lease, err := AcquireLease(path, "worker-1", time.Hour)
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if lease.Owner() != "worker-1" {
		t.Errorf("Owner = %q, want worker-1", lease.Owner())
	}

	// Lease file holds a readable token.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("lease file missing: %v", err)
	}
	var token leaseToken
	if err := json.Unmarshal(data, &token); err != nil {
		t.Fatalf("lease file not valid JSON: %v", err)
	}
	if token.Owner != "worker-1" || token.PID != os.Getpid() {
		t.Errorf("unexpected token: %+v", token)
	}

	if err := lease.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("lease file still present after release")
	}

	// Releasing twice is harmless.
	if err := lease.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

func TestAcquireConflict(t *testing.T) {
	path := leasePath(t)

	lease, err := AcquireLease(path, "worker-1", time.Hour)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer lease.Release() //nolint:errcheck // test cleanup

	_, err = AcquireLease(path, "worker-2", time.Hour)
	if !errors.Is(err, model.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
}

func TestAcquireConcurrentSingleWinner(t *testing.T) {
	path := leasePath(t)

	const contenders = 8
	var (
		start  = make(chan struct{})
		wg     sync.WaitGroup
		won    atomic.Int32
		denied atomic.Int32
	)
	leases := make([]*Lease, contenders)

	for n := 0; n < contenders; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start

			lease, err := AcquireLease(path, fmt.Sprintf("worker-%d", n), time.Hour)
			switch {
			case err == nil:
				won.Add(1)
				leases[n] = lease
			case errors.Is(err, model.ErrLeaseHeld):
				denied.Add(1)
			default:
				t.Errorf("worker %d: unexpected error %v", n, err)
			}
		}(n)
	}
	close(start)
	wg.Wait()

	if won.Load() != 1 {
		t.Fatalf("winners = %d, want exactly 1", won.Load())
	}
	if denied.Load() != contenders-1 {
		t.Errorf("ErrLeaseHeld count = %d, want %d", denied.Load(), contenders-1)
	}

	for _, lease := range leases {
		if lease != nil {
			if err := lease.Release(); err != nil {
				t.Errorf("Release failed: %v", err)
			}
		}
	}
}

func TestAcquireReclaimsStaleLease(t *testing.T) {
	path := leasePath(t)

	// Simulate a crashed holder: lease file old enough to be stale.
	stale := leaseToken{Owner: "crashed", PID: 99999, AcquiredAt: time.Now().UTC().Add(-2 * time.Hour)}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatal(err)
	}

	lease, err := AcquireLease(path, "worker-1", time.Hour)
	if err != nil {
		t.Fatalf("expected stale lease reclamation, got %v", err)
	}
	defer lease.Release() //nolint:errcheck // test cleanup

	if lease.Owner() != "worker-1" {
		t.Errorf("Owner = %q, want worker-1", lease.Owner())
	}
}

func TestAcquireReclaimsCorruptLease(t *testing.T) {
	path := leasePath(t)

	if err := os.WriteFile(path, []byte("not json"), 0o640); err != nil {
		t.Fatal(err)
	}

	lease, err := AcquireLease(path, "worker-1", time.Hour)
	if err != nil {
		t.Fatalf("expected corrupt lease reclamation, got %v", err)
	}
	defer lease.Release() //nolint:errcheck // test cleanup
}

func TestAcquireRespectsFreshLease(t *testing.T) {
	path := leasePath(t)

	fresh := leaseToken{Owner: "other", PID: 1234, AcquiredAt: time.Now().UTC().Add(-time.Minute)}
	data, err := json.Marshal(fresh)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatal(err)
	}

	_, err = AcquireLease(path, "worker-1", time.Hour)
	if !errors.Is(err, model.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld for fresh lease, got %v", err)
	}
}
