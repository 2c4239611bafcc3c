// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package artifact

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/feedrank/feedrank/internal/logging"
	"github.com/feedrank/feedrank/internal/model"
	"github.com/rs/zerolog"
)

const (
	// backupTimeFormat orders backup filenames lexicographically by age.
	backupTimeFormat = "20060102T150405.000000000"

	// DefaultKeepBackups is how many rotated backups survive a promote.
	DefaultKeepBackups = 5
)

// Store manages the model artifact file and its backups. The temp file
// used for staging lives in the artifact's directory so the final rename
// never crosses a filesystem boundary.
type Store struct {
	path        string
	keepBackups int
	logger      zerolog.Logger
}

// NewStore creates a store for the artifact at path, creating the parent
// directory if needed. keepBackups <= 0 selects DefaultKeepBackups.
func NewStore(path string, keepBackups int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("artifact path is empty")
	}
	if keepBackups <= 0 {
		keepBackups = DefaultKeepBackups
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	return &Store{
		path:        path,
		keepBackups: keepBackups,
		logger:      logging.WithComponent("artifact"),
	}, nil
}

// Path returns the artifact file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether an artifact file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// ModTime returns the artifact's last modification time.
func (s *Store) ModTime() (time.Time, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: stat artifact: %v", model.ErrStorage, err)
	}
	return fi.ModTime(), nil
}

// LoadSnapshot reads and decodes the artifact, verifying format version
// and checksum.
func (s *Store) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	snap, _, err := s.Load(ctx)
	return snap, err
}

// Load reads the artifact and returns both snapshot and metadata.
func (s *Store) Load(ctx context.Context) (*model.Snapshot, *Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open artifact: %v", model.ErrStorage, err)
	}
	defer f.Close() //nolint:errcheck // read-only close

	var stored storedArtifact
	if err := gob.NewDecoder(f).Decode(&stored); err != nil {
		return nil, nil, fmt.Errorf("%w: read artifact container: %v", model.ErrStorage, err)
	}

	snap, err := decode(&stored)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	return snap, &stored.Metadata, nil
}

// Stage writes the snapshot to a temp file beside the artifact and
// returns its path. The temp file is fsynced before close so a crash
// between Stage and Promote never leaves a torn artifact in place.
func (s *Store) Stage(snap *model.Snapshot, trainingDuration time.Duration) (string, error) {
	stored, err := encode(snap, trainingDuration)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp artifact: %v", model.ErrStorage, err)
	}

	if err := gob.NewEncoder(tmp).Encode(stored); err != nil {
		tmp.Close()           //nolint:errcheck // cleanup path
		os.Remove(tmp.Name()) //nolint:errcheck // cleanup path
		return "", fmt.Errorf("%w: write temp artifact: %v", model.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()           //nolint:errcheck // cleanup path
		os.Remove(tmp.Name()) //nolint:errcheck // cleanup path
		return "", fmt.Errorf("%w: sync temp artifact: %v", model.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // cleanup path
		return "", fmt.Errorf("%w: close temp artifact: %v", model.ErrStorage, err)
	}

	s.logger.Debug().Str("temp", tmp.Name()).Int("payload_bytes", len(stored.CompressedData)).Msg("Artifact staged")

	return tmp.Name(), nil
}

// Promote atomically replaces the artifact with the staged temp file.
// The previous artifact, if any, is first copied to a timestamped backup
// so the live file stays in place until the final rename lands; a failed
// promote leaves the last-known-good artifact loadable. Old backups
// beyond the keep limit are removed.
func (s *Store) Promote(tempPath string) error {
	if _, err := os.Stat(s.path); err == nil {
		backup := fmt.Sprintf("%s.bak-%s", s.path, time.Now().UTC().Format(backupTimeFormat))
		if err := copyFile(s.path, backup); err != nil {
			return fmt.Errorf("%w: back up current artifact: %v", model.ErrStorage, err)
		}
		s.logger.Info().Str("backup", filepath.Base(backup)).Msg("Previous artifact backed up")
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("%w: promote staged artifact: %v", model.ErrStorage, err)
	}

	if err := s.rotateBackups(); err != nil {
		// The new artifact is live; rotation failure only leaks disk.
		s.logger.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}

// copyFile duplicates src to dst, fsyncing before close. dst must not
// already exist.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only close

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()    //nolint:errcheck // cleanup path
		os.Remove(dst) //nolint:errcheck // cleanup path
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()    //nolint:errcheck // cleanup path
		os.Remove(dst) //nolint:errcheck // cleanup path
		return err
	}
	return out.Close()
}

// Backups returns existing backup paths, newest first.
func (s *Store) Backups() ([]string, error) {
	matches, err := filepath.Glob(s.path + ".bak-*")
	if err != nil {
		return nil, fmt.Errorf("%w: list backups: %v", model.ErrStorage, err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// rotateBackups removes all but the newest keepBackups backups.
func (s *Store) rotateBackups() error {
	backups, err := s.Backups()
	if err != nil {
		return err
	}

	for _, old := range backups[min(len(backups), s.keepBackups):] {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("remove old backup %s: %w", filepath.Base(old), err)
		}
		s.logger.Debug().Str("backup", filepath.Base(old)).Msg("Old backup removed")
	}

	return nil
}

// CleanupStaging removes leftover temp files from interrupted runs.
func (s *Store) CleanupStaging() {
	matches, err := filepath.Glob(s.path + ".tmp-*")
	if err != nil {
		return
	}
	for _, stale := range matches {
		if strings.HasPrefix(filepath.Base(stale), filepath.Base(s.path)+".tmp-") {
			if err := os.Remove(stale); err == nil {
				s.logger.Debug().Str("temp", filepath.Base(stale)).Msg("Stale staging file removed")
			}
		}
	}
}
