// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package model

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSource is an in-memory SnapshotSource for store tests.
type fakeSource struct {
	mu      sync.Mutex
	snap    *Snapshot
	modTime time.Time
	loadErr error
	statErr error
}

func (f *fakeSource) LoadSnapshot(_ context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.snap, nil
}

func (f *fakeSource) ModTime() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return time.Time{}, f.statErr
	}
	return f.modTime, nil
}

func (f *fakeSource) set(snap *Snapshot, modTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.modTime = modTime
}

func TestStoreActiveBeforePublish(t *testing.T) {
	store := NewStore(&fakeSource{})

	if _, err := store.Active(); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}

	st := store.Status()
	if st.Loaded {
		t.Error("expected Loaded=false before first publish")
	}
}

func TestStorePublishAndActive(t *testing.T) {
	store := NewStore(&fakeSource{modTime: time.Now()})
	snap := validSnapshot()

	if err := store.Publish(snap); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, err := store.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if got != snap {
		t.Error("Active returned a different snapshot than published")
	}

	st := store.Status()
	if !st.Loaded || st.UserCount != 2 || st.ItemCount != 3 || st.Dim != 2 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestStorePublishRejectsInvalid(t *testing.T) {
	store := NewStore(&fakeSource{})
	good := validSnapshot()
	if err := store.Publish(good); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	bad := validSnapshot()
	bad.Dim = 0
	err := store.Publish(bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// Active snapshot must be untouched by a rejected publish.
	active, err := store.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active != good {
		t.Error("rejected publish replaced the active snapshot")
	}
}

func TestStoreReloadSwapsNewArtifact(t *testing.T) {
	first := validSnapshot()
	src := &fakeSource{snap: first, modTime: time.Now()}
	store := NewStore(src)

	res, err := store.Reload(context.Background())
	if err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}
	if !res.Reloaded {
		t.Fatalf("expected initial reload to load artifact: %+v", res)
	}

	// Unchanged artifact: no swap.
	res, err = store.Reload(context.Background())
	if err != nil {
		t.Fatalf("second reload failed: %v", err)
	}
	if res.Reloaded {
		t.Error("expected reload to skip unchanged artifact")
	}

	// Newer artifact: swap.
	second := validSnapshot()
	second.BuiltAt = first.BuiltAt.Add(time.Hour)
	src.set(second, src.modTime.Add(time.Minute))

	res, err = store.Reload(context.Background())
	if err != nil {
		t.Fatalf("third reload failed: %v", err)
	}
	if !res.Reloaded {
		t.Fatalf("expected reload to pick up new artifact: %+v", res)
	}
	if !res.NewBuilt.Equal(second.BuiltAt) {
		t.Errorf("NewBuilt = %v, want %v", res.NewBuilt, second.BuiltAt)
	}
	if !res.PreviousBuilt.Equal(first.BuiltAt) {
		t.Errorf("PreviousBuilt = %v, want %v", res.PreviousBuilt, first.BuiltAt)
	}

	active, _ := store.Active()
	if active != second {
		t.Error("reload did not swap in the new snapshot")
	}
}

func TestStoreReloadKeepsActiveOnFailure(t *testing.T) {
	first := validSnapshot()
	src := &fakeSource{snap: first, modTime: time.Now()}
	store := NewStore(src)

	if _, err := store.Reload(context.Background()); err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}

	src.mu.Lock()
	src.loadErr = errors.New("checksum mismatch")
	src.modTime = src.modTime.Add(time.Minute)
	src.mu.Unlock()

	res, err := store.Reload(context.Background())
	if err == nil {
		t.Fatal("expected reload error")
	}
	if res.Reloaded {
		t.Error("failed reload must report Reloaded=false")
	}

	active, aerr := store.Active()
	if aerr != nil {
		t.Fatalf("Active failed after bad reload: %v", aerr)
	}
	if active != first {
		t.Error("failed reload disturbed the active snapshot")
	}
}

func TestStoreStatusStaleness(t *testing.T) {
	first := validSnapshot()
	src := &fakeSource{snap: first, modTime: time.Now()}
	store := NewStore(src)

	if _, err := store.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if st := store.Status(); st.Stale {
		t.Error("freshly loaded model should not be stale")
	}

	src.set(first, src.modTime.Add(time.Minute))
	if st := store.Status(); !st.Stale {
		t.Error("expected stale=true when artifact is newer than loaded model")
	}
}

func TestStoreConcurrentReadersDuringSwap(t *testing.T) {
	first := validSnapshot()
	src := &fakeSource{snap: first, modTime: time.Now()}
	store := NewStore(src)
	if err := store.Publish(first); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, err := store.Active()
				if err != nil {
					t.Errorf("Active failed during swap: %v", err)
					return
				}
				// A pinned snapshot must stay internally consistent.
				if len(snap.UserFactors) != len(snap.Users) {
					t.Error("reader observed inconsistent snapshot")
					return
				}
				_ = snap.Score(0, 0)
			}
		}()
	}

	for i := 0; i < 50; i++ {
		next := validSnapshot()
		next.BuiltAt = first.BuiltAt.Add(time.Duration(i+1) * time.Minute)
		if err := store.Publish(next); err != nil {
			t.Errorf("publish %d failed: %v", i, err)
		}
	}

	close(stop)
	wg.Wait()
}
