// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package settings persists the client's state blob: known render
// nodes, project sync preferences, history, and UI option flags. The
// blob is a single JSON document whose schema is stable across
// releases.
//
// Loading layers three sources through koanf, highest priority last:
// built-in defaults, the settings file, and BLENDFARM_* environment
// variables.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PastClient is a remembered render node, keyed by node id in the
// blob.
type PastClient struct {
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	RenderType  string  `json:"renderType,omitempty"`
	Performance float64 `json:"performance,omitempty"`
	Pass        string  `json:"pass,omitempty"`
	MAC         string  `json:"mac,omitempty"`
}

// ProjectSettings are per-project sync preferences, keyed by blend
// file path.
type ProjectSettings struct {
	UseNetworked   bool   `json:"useNetworked"`
	NetPathWindows string `json:"netPathWindows,omitempty"`
	NetPathLinux   string `json:"netPathLinux,omitempty"`
	NetPathMacOS   string `json:"netPathMacOS,omitempty"`
}

// Settings is the persisted client state blob.
type Settings struct {
	LocalBlendFiles     string                     `json:"localBlendFiles"`
	ListenForBroadcasts bool                       `json:"listenForBroadcasts"`
	LastVersion         string                     `json:"lastVersion"`
	History             []string                   `json:"history"`
	PastClients         map[string]PastClient      `json:"pastClients"`
	ProjectSettings     map[string]ProjectSettings `json:"projectSettings"`

	// Options holds the flat option_* boolean flags from the blob's
	// top level, keyed by their full option_ name.
	Options map[string]bool `json:"-"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		LocalBlendFiles:     "BlendFarm/LocalBlendFiles",
		ListenForBroadcasts: true,
		History:             []string{},
		PastClients:         map[string]PastClient{},
		ProjectSettings:     map[string]ProjectSettings{},
		Options:             map[string]bool{},
	}
}

// envPrefix maps BLENDFARM_LAST_VERSION to lastVersion, etc.
const envPrefix = "BLENDFARM_"

// Load reads the settings blob from path, layering defaults, the file
// (when present), and environment overrides. A missing file is not an
// error; it yields defaults.
func Load(path string) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "json"), nil); err != nil {
		return Settings{}, fmt.Errorf("settings: defaults: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, envPrefix)
		return snakeToCamel(key)
	}), nil); err != nil {
		return Settings{}, fmt.Errorf("settings: environment: %w", err)
	}

	var out Settings
	if err := k.UnmarshalWithConf("", &out, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Settings{}, fmt.Errorf("settings: decode: %w", err)
	}

	// option_* flags live flat at the blob's top level.
	out.Options = map[string]bool{}
	for _, key := range k.Keys() {
		if strings.HasPrefix(key, "option_") {
			out.Options[key] = k.Bool(key)
		}
	}

	return out, nil
}

// Save writes the settings blob to path atomically: temp file in the
// same directory, then rename.
func Save(path string, s Settings) error {
	blob := map[string]any{}
	encoded, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := json.Unmarshal(encoded, &blob); err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	for name, value := range s.Options {
		blob[name] = value
	}

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	return nil
}

// snakeToCamel maps LAST_VERSION to lastVersion and
// LISTEN_FOR_BROADCASTS to listenForBroadcasts.
func snakeToCamel(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
