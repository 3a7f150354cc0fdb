// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.ListenForBroadcasts {
		t.Error("default listenForBroadcasts = false, want true")
	}
	if cfg.LocalBlendFiles == "" {
		t.Error("default localBlendFiles empty")
	}
	if cfg.PastClients == nil || cfg.ProjectSettings == nil {
		t.Error("maps not initialized on defaults")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	in := Default()
	in.LastVersion = "3.6.0"
	in.History = []string{"/scenes/a.blend", "/scenes/b.blend"}
	in.PastClients["node-1"] = PastClient{
		Name:        "node-1",
		Address:     "192.168.1.20:15000",
		RenderType:  "OPTIX",
		Performance: 1.5,
		Pass:        "hunter2",
		MAC:         "AA:BB:CC:DD:EE:FF",
	}
	in.ProjectSettings["/scenes/a.blend"] = ProjectSettings{
		UseNetworked:   true,
		NetPathWindows: `\\nas\scenes\a.blend`,
		NetPathLinux:   "/mnt/nas/scenes/a.blend",
	}
	in.Options["option_previewRenders"] = true
	in.Options["option_autoSync"] = false

	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if out.LastVersion != "3.6.0" {
		t.Errorf("lastVersion = %q", out.LastVersion)
	}
	if len(out.History) != 2 || out.History[0] != "/scenes/a.blend" {
		t.Errorf("history = %v", out.History)
	}
	client, ok := out.PastClients["node-1"]
	if !ok {
		t.Fatal("pastClients lost node-1")
	}
	if client.Address != "192.168.1.20:15000" || client.RenderType != "OPTIX" ||
		client.Performance != 1.5 || client.Pass != "hunter2" || client.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("pastClient = %+v", client)
	}
	project, ok := out.ProjectSettings["/scenes/a.blend"]
	if !ok {
		t.Fatal("projectSettings lost the blend path")
	}
	if !project.UseNetworked || project.NetPathWindows != `\\nas\scenes\a.blend` {
		t.Errorf("projectSettings = %+v", project)
	}
	if v, ok := out.Options["option_previewRenders"]; !ok || !v {
		t.Errorf("option_previewRenders = %v, %v", v, ok)
	}
	if v, ok := out.Options["option_autoSync"]; !ok || v {
		t.Errorf("option_autoSync = %v, %v", v, ok)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Setenv("BLENDFARM_LAST_VERSION", "4.0.2")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LastVersion != "4.0.2" {
		t.Errorf("env override ignored: lastVersion = %q", cfg.LastVersion)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory contains %v, want only settings.json", names)
	}
}
