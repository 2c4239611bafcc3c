// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("select", "interactions"))

	RecordDBQuery("select", "interactions", 10*time.Millisecond, nil)
	RecordDBQuery("select", "interactions", 10*time.Millisecond, errors.New("connection closed"))

	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("select", "interactions"))
	if after-before != 1 {
		t.Errorf("expected 1 error recorded, got %v", after-before)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/recommendations", "200"))

	RecordAPIRequest("GET", "/api/v1/recommendations", "200", 25*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/recommendations", "200"))
	if after-before != 1 {
		t.Errorf("expected 1 request recorded, got %v", after-before)
	}
}

func TestRecordTrainingRunOutcomes(t *testing.T) {
	doneBefore := testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("done"))
	failedBefore := testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("failed"))

	RecordTrainingRun("done", 2*time.Second)
	RecordTrainingRun("failed", time.Second)

	if got := testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("done")) - doneBefore; got != 1 {
		t.Errorf("done runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(TrainingRunsTotal.WithLabelValues("failed")) - failedBefore; got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}

	// Only successful runs update the last success timestamp.
	if testutil.ToFloat64(TrainingLastSuccess) == 0 {
		t.Error("expected last success timestamp to be set")
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+1 {
		t.Errorf("active requests = %v, want %v", got, base+1)
	}

	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("active requests = %v, want %v", got, base)
	}
}

func TestModelGauges(t *testing.T) {
	ModelUsers.Set(42)
	ModelItems.Set(99)

	if got := testutil.ToFloat64(ModelUsers); got != 42 {
		t.Errorf("model users gauge = %v, want 42", got)
	}
	if got := testutil.ToFloat64(ModelItems); got != 99 {
		t.Errorf("model items gauge = %v, want 99", got)
	}
}
