// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogHandlerWritesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	slogger := slog.New(NewSlogHandler())
	slogger.Info("service started", "name", "http-server", "attempt", int64(2))

	out := buf.String()
	if !strings.Contains(out, `"message":"service started"`) {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, `"name":"http-server"`) {
		t.Errorf("expected string attr in output, got %q", out)
	}
	if !strings.Contains(out, `"attempt":2`) {
		t.Errorf("expected int attr in output, got %q", out)
	}
}

func TestSlogHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	slogger := slog.New(NewSlogHandler()).With("supervisor", "root")
	slogger.Warn("service failed")

	if !strings.Contains(buf.String(), `"supervisor":"root"`) {
		t.Errorf("expected pre-configured attr in output, got %q", buf.String())
	}
}

func TestSlogHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	slogger := slog.New(NewSlogHandler()).WithGroup("suture")
	slogger.Error("backoff", "delay", "15s")

	if !strings.Contains(buf.String(), `"suture.delay":"15s"`) {
		t.Errorf("expected group-prefixed attr, got %q", buf.String())
	}
}

func TestSlogLevelMapping(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, `"level":"debug"`},
		{slog.LevelInfo, `"level":"info"`},
		{slog.LevelWarn, `"level":"warn"`},
		{slog.LevelError, `"level":"error"`},
	}

	SetLevelString("trace")
	for _, tt := range tests {
		var buf bytes.Buffer
		SetLogger(NewTestLogger(&buf))

		slogger := slog.New(NewSlogHandler())
		slogger.Log(t.Context(), tt.level, "msg")

		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("level %v: expected %s in output, got %q", tt.level, tt.want, buf.String())
		}
	}
	Init(DefaultConfig())
}
