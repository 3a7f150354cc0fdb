// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package main is the BlendFarm command-line client. It attaches to a
// single render node, provisions the requested Blender version, syncs
// a scene file, and renders a frame:
//
//	blendfarm -node 192.168.1.20:15000 -file scene.blend -version 3.6.0 -frame 1
//
// With -attach it instead keeps the session alive under supervision,
// reconnecting across drops, until interrupted. With -discover it
// listens for node announcement broadcasts and prints what it hears.
// A Prometheus endpoint is exposed when -metrics is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Ludrietz/blendfarm/internal/client"
	"github.com/Ludrietz/blendfarm/internal/discovery"
	"github.com/Ludrietz/blendfarm/internal/logging"
	"github.com/Ludrietz/blendfarm/internal/protocol"
	"github.com/Ludrietz/blendfarm/internal/settings"
	"github.com/Ludrietz/blendfarm/internal/supervisor"
)

func main() {
	var (
		settingsPath = flag.String("settings", "blendfarm-settings.json", "settings blob path")
		nodeAddr     = flag.String("node", "", "render node address (host:port)")
		nodeName     = flag.String("name", "node", "render node label")
		pass         = flag.String("pass", "", "node password, when the node requires auth")
		mac          = flag.String("mac", "", "node MAC for wake-on-LAN before connect")
		renderType   = flag.String("render-type", "CPU", "compute device hint (CPU, CUDA, OPTIX, ...)")
		version      = flag.String("version", "", "Blender version to provision (defaults to last used)")
		blendFile    = flag.String("file", "", "scene file to sync and render")
		sessionID    = flag.String("session", "", "session id (defaults to a fresh uuid)")
		frame        = flag.Int("frame", 1, "frame to render")
		samples      = flag.Int("samples", 128, "render samples")
		resX         = flag.Int("resx", 1920, "render width")
		resY         = flag.Int("resy", 1080, "render height")
		engine       = flag.String("engine", "CYCLES", "render engine")
		compression  = flag.String("compression", "none", "sync chunk compression: none, gzip, zstd")
		output       = flag.String("output", "render.png", "output image path")
		netWindows   = flag.String("net-windows", "", "network share path as seen from Windows nodes")
		netLinux     = flag.String("net-linux", "", "network share path as seen from Linux nodes")
		netMacOS     = flag.String("net-macos", "", "network share path as seen from macOS nodes")
		metricsAddr  = flag.String("metrics", "", "Prometheus listen address (empty disables)")
		attach       = flag.Bool("attach", false, "stay attached to the node under supervision instead of rendering; reconnects on drops")
		discover     = flag.Bool("discover", false, "listen for node broadcasts instead of rendering")
		logLevel     = flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := settings.Load(*settingsPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("cannot load settings")
	}

	if *discover {
		if !cfg.ListenForBroadcasts {
			logging.Fatal().Msg("listenForBroadcasts is disabled in settings")
		}
		runDiscovery(ctx)
		return
	}

	if *nodeAddr == "" {
		fmt.Fprintln(os.Stderr, "missing -node address")
		flag.Usage()
		os.Exit(2)
	}
	if *version == "" {
		*version = cfg.LastVersion
	}
	if *version == "" && !*attach {
		logging.Fatal().Msg("no -version given and no lastVersion in settings")
	}
	if *sessionID == "" {
		*sessionID = uuid.NewString()
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	if *metricsAddr != "" {
		tree.AddTelemetry(supervisor.NewMetricsService(*metricsAddr))
	}
	supervisorDone := tree.Root().ServeBackground(ctx)

	node, err := client.New(client.Config{
		Name:       *nodeName,
		Address:    *nodeAddr,
		Pass:       *pass,
		MAC:        *mac,
		RenderType: *renderType,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid node configuration")
	}

	changes := node.Subscribe()
	defer node.Unsubscribe(changes)
	go func() {
		for change := range changes {
			if change.Field == client.FieldActivity && change.Value != "" {
				logging.Info().Str("node", node.Name()).Str("activity", fmt.Sprint(change.Value)).Msg("activity")
			}
		}
	}()

	if *attach {
		// Long-lived mode: the session layer owns the connection and
		// reconnects across drops until interrupted.
		tree.AddSession(supervisor.NewSessionService(node))
		logging.Info().Str("node", node.Name()).Msg("session supervised, ctrl-c to detach")
		<-ctx.Done()
		<-supervisorDone
		return
	}

	if err := run(ctx, node, runOptions{
		version:     *version,
		blendFile:   *blendFile,
		sessionID:   *sessionID,
		frame:       *frame,
		samples:     *samples,
		resX:        *resX,
		resY:        *resY,
		engine:      *engine,
		compression: protocol.Compression(*compression),
		output:      *output,
		netWindows:  *netWindows,
		netLinux:    *netLinux,
		netMacOS:    *netMacOS,
	}); err != nil {
		logging.Error().Err(err).Msg("render run failed")
		_ = node.Disconnect()
		os.Exit(1)
	}

	// Remember the node and version for the next run.
	cfg.LastVersion = *version
	cfg.PastClients[node.Name()] = settings.PastClient{
		Name:        node.Name(),
		Address:     node.Address(),
		RenderType:  node.RenderType(),
		Performance: node.Performance(),
		Pass:        *pass,
		MAC:         *mac,
	}
	if *blendFile != "" {
		cfg.History = appendHistory(cfg.History, *blendFile)
	}
	if err := settings.Save(*settingsPath, cfg); err != nil {
		logging.Warn().Err(err).Msg("cannot save settings")
	}

	if err := node.Disconnect(); err != nil {
		logging.Debug().Err(err).Msg("disconnect")
	}
}

type runOptions struct {
	version     string
	blendFile   string
	sessionID   string
	frame       int
	samples     int
	resX        int
	resY        int
	engine      string
	compression protocol.Compression
	output      string
	netWindows  string
	netLinux    string
	netMacOS    string
}

// run drives one node through the connect → prepare → sync → render
// sequence.
func run(ctx context.Context, node *client.Node, opts runOptions) error {
	if err := node.Connect(ctx); err != nil {
		return err
	}
	logging.Info().Str("computer", node.ComputerName()).Str("os", node.OS()).
		Int("cores", node.Cores()).Msg("handshake complete")

	available, err := node.IsVersionAvailable(ctx, opts.version)
	if err != nil {
		return err
	}
	if !available {
		if err := node.Prepare(ctx, opts.version); err != nil {
			return err
		}
	}

	node.SelectSession(opts.sessionID)
	fileID := time.Now().UnixMilli()

	switch {
	case opts.netWindows != "" || opts.netLinux != "" || opts.netMacOS != "":
		err = node.SyncNetworkFile(ctx, opts.sessionID, fileID, opts.netWindows, opts.netLinux, opts.netMacOS)
	case opts.blendFile != "":
		f, openErr := os.Open(opts.blendFile)
		if openErr != nil {
			return fmt.Errorf("open %s: %w", opts.blendFile, openErr)
		}
		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return fmt.Errorf("stat %s: %w", opts.blendFile, statErr)
		}
		err = node.SyncFile(ctx, opts.sessionID, fileID, f, info.Size(), opts.compression)
		f.Close()
	default:
		return fmt.Errorf("nothing to sync: give -file or network share paths")
	}
	if err != nil {
		return err
	}

	resp, err := node.Render(ctx, protocol.Render{
		TaskID:    uuid.NewString(),
		SessionID: opts.sessionID,
		FileID:    fileID,
		Version:   opts.version,
		Settings: protocol.RenderSettings{
			Frame:       opts.frame,
			ResolutionX: opts.resX,
			ResolutionY: opts.resY,
			Samples:     opts.samples,
			Engine:      opts.engine,
			X:           0, Y: 0, X2: 1, Y2: 1,
		},
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("node rejected render: %s", resp.Message)
	}

	if err := os.WriteFile(opts.output, resp.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	logging.Info().Str("output", opts.output).Int("bytes", len(resp.Data)).
		Float64("score_pp", node.PerformanceScorePP()).Msg("render complete")
	return nil
}

// runDiscovery prints node announcements until interrupted.
func runDiscovery(ctx context.Context) {
	listener, err := discovery.Listen(func(found discovery.Found) {
		logging.Info().Str("name", found.Name).Str("address", found.Address).Msg("node found")
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("cannot listen for broadcasts")
	}
	defer listener.Close()

	logging.Info().Int("port", discovery.Port).Msg("listening for node broadcasts, ctrl-c to stop")
	<-ctx.Done()
}

// appendHistory prepends path to the recents list, deduplicated,
// capped at ten entries.
func appendHistory(history []string, path string) []string {
	out := []string{path}
	for _, entry := range history {
		if entry != path && len(out) < 10 {
			out = append(out, entry)
		}
	}
	return out
}
