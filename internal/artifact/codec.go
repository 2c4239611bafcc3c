// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package artifact persists model snapshots as single-file artifacts and
// coordinates their replacement: staging to a temp file, same-volume
// atomic rename, timestamped backup rotation, and an exclusive training
// lease so only one process retrains at a time.
package artifact

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/feedrank/feedrank/internal/model"
)

// formatVersion guards against decoding artifacts written by an
// incompatible release.
const formatVersion = 1

// Metadata describes a stored artifact without decoding the payload.
type Metadata struct {
	FormatVersion      int
	BuiltAt            time.Time
	UserCount          int
	ItemCount          int
	Dim                int
	Checksum           string
	SizeBytes          int64
	TrainingDurationMS int64
}

// storedArtifact is the on-disk container: metadata in the clear, the
// snapshot gob-encoded, checksummed, then gzip-compressed.
type storedArtifact struct {
	Metadata       Metadata
	CompressedData []byte
}

// encode serializes a snapshot into the artifact container.
func encode(snap *model.Snapshot, trainingDuration time.Duration) (*storedArtifact, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(raw.Bytes()))

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	return &storedArtifact{
		Metadata: Metadata{
			FormatVersion:      formatVersion,
			BuiltAt:            snap.BuiltAt,
			UserCount:          len(snap.Users),
			ItemCount:          len(snap.Items),
			Dim:                snap.Dim,
			Checksum:           checksum,
			SizeBytes:          int64(raw.Len()),
			TrainingDurationMS: trainingDuration.Milliseconds(),
		},
		CompressedData: compressed.Bytes(),
	}, nil
}

// decode deserializes the artifact container, verifying the format
// version and payload checksum before decoding the snapshot.
func decode(stored *storedArtifact) (*model.Snapshot, error) {
	if stored.Metadata.FormatVersion != formatVersion {
		return nil, fmt.Errorf("unsupported artifact format version %d", stored.Metadata.FormatVersion)
	}

	gz, err := gzip.NewReader(bytes.NewReader(stored.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("open compressed payload: %w", err)
	}
	defer gz.Close() //nolint:errcheck // read-side close

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(raw))
	if checksum != stored.Metadata.Checksum {
		return nil, fmt.Errorf("checksum mismatch: artifact corrupted")
	}

	var snap model.Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return &snap, nil
}
