// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"testing"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Name: "n1", Address: "10.0.0.2:15000"}, false},
		{"valid with mac", Config{Name: "n1", Address: "10.0.0.2:15000", MAC: "AA:BB:CC:DD:EE:FF"}, false},
		{"missing name", Config{Address: "10.0.0.2:15000"}, true},
		{"missing address", Config{Name: "n1"}, true},
		{"address without port", Config{Name: "n1", Address: "10.0.0.2"}, true},
		{"short mac", Config{Name: "n1", Address: "10.0.0.2:15000", MAC: "AA:BB:CC"}, true},
		{"non-hex mac", Config{Name: "n1", Address: "10.0.0.2:15000", MAC: "GG:BB:CC:DD:EE:FF"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	node, err := New(Config{Name: "n1", Address: "10.0.0.2:15000"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if node.Cores() != -1 {
		t.Errorf("Cores = %d before handshake, want -1 (unknown)", node.Cores())
	}
	if !node.IsIdle() {
		t.Error("fresh node not idle")
	}
	if node.HasActivityProgress() {
		t.Error("fresh node has activity progress")
	}
	if node.Connected() {
		t.Error("fresh node reports connected")
	}
	if node.retry.RenderAttempts != 3 {
		t.Errorf("default RenderAttempts = %d, want 3", node.retry.RenderAttempts)
	}
	if node.retry.BatchAttempts != 0 {
		t.Errorf("default BatchAttempts = %d, want 0 (unbounded)", node.retry.BatchAttempts)
	}
	if node.retry.ConnectAttempts != 5 {
		t.Errorf("default ConnectAttempts = %d, want 5", node.retry.ConnectAttempts)
	}
}

func TestUpdatePerformance(t *testing.T) {
	node, err := New(Config{Name: "n1", Address: "10.0.0.2:15000"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := node.UpdatePerformance(2073600, 0); err == nil {
		t.Error("UpdatePerformance accepted ms=0")
	}
	if err := node.UpdatePerformance(2073600, -5); err == nil {
		t.Error("UpdatePerformance accepted negative ms")
	}

	if err := node.UpdatePerformance(1000, 10); err != nil {
		t.Fatalf("UpdatePerformance: %v", err)
	}
	if got := node.PerformanceScorePP(); got != 100 {
		t.Errorf("PerformanceScorePP = %v, want 100", got)
	}
}

func TestSessionSelection(t *testing.T) {
	node, err := New(Config{Name: "n1", Address: "10.0.0.2:15000"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	changes := node.Subscribe()
	defer node.Unsubscribe(changes)

	node.SelectSession("s1")
	if node.SelectedSession() != "s1" {
		t.Errorf("SelectedSession = %q, want s1", node.SelectedSession())
	}
	if node.IsSynced() {
		t.Error("IsSynced true for never-synced session")
	}

	node.markSynced("s1", 42)
	if !node.IsSynced() {
		t.Error("IsSynced false after verified sync of selected session")
	}
	if node.LastFileID() != 42 {
		t.Errorf("LastFileID = %d, want 42", node.LastFileID())
	}

	node.SelectSession("s2")
	if node.IsSynced() {
		t.Error("IsSynced tracked the wrong session after selection change")
	}

	change := <-changes
	if change.Field != FieldSelectedSession || change.Value != "s1" {
		t.Errorf("first change = %+v, want selectedSessionId=s1", change)
	}
}

func TestConsoleLogSnapshot(t *testing.T) {
	node, err := New(Config{Name: "n1", Address: "10.0.0.2:15000"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	node.appendConsole("Fra:1 Mem:120M")
	node.appendConsole("Fra:1 | Rendering")

	snapshot := node.ConsoleLog()
	if len(snapshot) != 2 {
		t.Fatalf("ConsoleLog len = %d, want 2", len(snapshot))
	}

	// The snapshot is a copy; later appends must not alias into it.
	node.appendConsole("Saved: render.png")
	if len(snapshot) != 2 {
		t.Error("snapshot changed after append")
	}
	if len(node.ConsoleLog()) != 3 {
		t.Error("append-only buffer lost a line")
	}
}

func TestActivityDerivedProperties(t *testing.T) {
	node, err := New(Config{Name: "n1", Address: "10.0.0.2:15000"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	node.setActivity("Syncing (50.0%)", 50)
	if node.IsIdle() {
		t.Error("IsIdle true during activity")
	}
	if !node.HasActivityProgress() {
		t.Error("HasActivityProgress false at 50%")
	}

	node.setActivity("Render Loading..", -1)
	if node.HasActivityProgress() {
		t.Error("HasActivityProgress true for indeterminate progress")
	}

	node.clearActivity()
	if !node.IsIdle() {
		t.Error("IsIdle false after clearActivity")
	}
	if node.ActivityProgress() != -1 {
		t.Errorf("ActivityProgress = %v after clear, want -1", node.ActivityProgress())
	}
}

func TestExceptionClear(t *testing.T) {
	node, err := New(Config{Name: "n1", Address: "10.0.0.2:15000"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	node.setException("render crashed")
	if node.Exception() == "" {
		t.Fatal("exception not recorded")
	}
	node.ClearException()
	if node.Exception() != "" {
		t.Error("ClearException left the exception in place")
	}
}
