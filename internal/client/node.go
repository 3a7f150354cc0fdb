// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ludrietz/blendfarm/internal/logging"
	"github.com/Ludrietz/blendfarm/internal/protocol"
	"github.com/Ludrietz/blendfarm/internal/validation"
)

// Observable field names carried by change notifications.
const (
	FieldConnected        = "connected"
	FieldComputerName     = "computerName"
	FieldOS               = "os"
	FieldCores            = "cores"
	FieldActivity         = "activity"
	FieldActivityProgress = "activityProgress"
	FieldException        = "exception"
	FieldLastStatus       = "lastStatus"
	FieldCurrentTaskID    = "currentTaskId"
	FieldSynced           = "synced"
	FieldLastFileID       = "lastFileId"
	FieldSelectedSession  = "selectedSessionId"
	FieldVersions         = "availableVersions"
	FieldPrepared         = "isPrepared"
	FieldPerformanceScore = "performanceScorePP"
	FieldConsoleLog       = "consoleLog"
)

// Change is one observable property mutation, delivered to subscribers
// in mutation order. The notification channel is the only coupling to
// any UI layer.
type Change struct {
	Field string
	Value any
}

// changeQueueSize bounds each subscriber's notification queue. A
// subscriber that falls this far behind loses updates; readers accept
// last-write-wins semantics.
const changeQueueSize = 64

// RetryPolicy bounds transparent task recovery after mid-task
// disconnects.
type RetryPolicy struct {
	// RenderAttempts caps disconnect retries for single render and peek
	// tasks. Default 3.
	RenderAttempts int

	// BatchAttempts caps disconnect retries for batch renders. 0 means
	// unbounded, the historical default: long batches are expected to
	// survive several connection flaps.
	BatchAttempts int

	// ConnectAttempts and ConnectInterval parameterize each
	// connect-and-recover cycle. Defaults 5 and 1s.
	ConnectAttempts int
	ConnectInterval time.Duration
}

// DefaultRetryPolicy returns the historical retry budgets.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RenderAttempts:  3,
		BatchAttempts:   0,
		ConnectAttempts: 5,
		ConnectInterval: time.Second,
	}
}

// Config describes a render node to attach to.
type Config struct {
	// Name is the caller-facing node label.
	Name string `validate:"required"`

	// Address is the node daemon's TCP endpoint, host:port.
	Address string `validate:"required,hostport"`

	// Pass is sent verbatim when the node demands authentication.
	// Plaintext by protocol design.
	Pass string

	// MAC, when set, triggers a wake-on-LAN magic packet before each
	// connect attempt.
	MAC string `validate:"omitempty,mac48"`

	// RenderType is the compute device hint forwarded to the node
	// (CPU, CUDA, OPTIX, HIP, METAL, ...).
	RenderType string

	// Performance is the user-assigned relative weight; values <= 0
	// mean "use core count".
	Performance float64

	// Retry overrides the default recovery budgets. Zero-value fields
	// keep their defaults, except BatchAttempts where 0 is the
	// meaningful "unbounded" default.
	Retry RetryPolicy
}

// Node is the client-side record of one render node: identity,
// capability, per-session sync state, current activity, and the
// connection driving it. All exported accessors are safe for
// concurrent use; mutations emit change notifications.
type Node struct {
	// Immutable identity.
	name       string
	address    string
	pass       string
	mac        string
	renderType string

	retry RetryPolicy

	// connectMu serializes Connect/Disconnect/recovery transitions.
	connectMu sync.Mutex

	mu sync.RWMutex

	conn      *Connection
	connected bool

	computerName string
	os           string
	cores        int

	performance        float64
	performanceScorePP float64

	selectedSessionID string
	synced            map[string]bool
	lastFileID        int64
	availableVersions map[string]struct{}
	isPrepared        bool

	activity         string
	activityProgress float64
	exception        string
	lastStatus       string
	currentTaskID    string
	taskCancel       context.CancelFunc

	consoleLog []string

	subMu sync.Mutex
	subs  map[chan Change]struct{}

	batchMu   sync.RWMutex
	onBatches []func(protocol.RenderBatchResult)
}

// New validates cfg and constructs a detached Node.
func New(cfg Config) (*Node, error) {
	if err := validation.ValidateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("node %q: %w", cfg.Name, err)
	}

	retry := cfg.Retry
	defaults := DefaultRetryPolicy()
	if retry.RenderAttempts == 0 {
		retry.RenderAttempts = defaults.RenderAttempts
	}
	if retry.ConnectAttempts == 0 {
		retry.ConnectAttempts = defaults.ConnectAttempts
	}
	if retry.ConnectInterval == 0 {
		retry.ConnectInterval = defaults.ConnectInterval
	}

	return &Node{
		name:              cfg.Name,
		address:           cfg.Address,
		pass:              cfg.Pass,
		mac:               cfg.MAC,
		renderType:        cfg.RenderType,
		performance:       cfg.Performance,
		retry:             retry,
		cores:             -1,
		activityProgress:  -1,
		synced:            make(map[string]bool),
		availableVersions: make(map[string]struct{}),
		subs:              make(map[chan Change]struct{}),
	}, nil
}

// Subscribe returns a channel receiving a Change per observable
// property mutation. Unsubscribe it when done.
func (n *Node) Subscribe() <-chan Change {
	ch := make(chan Change, changeQueueSize)
	n.subMu.Lock()
	n.subs[ch] = struct{}{}
	n.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (n *Node) Unsubscribe(ch <-chan Change) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for sub := range n.subs {
		if sub == ch {
			delete(n.subs, sub)
			close(sub)
			return
		}
	}
}

// emit publishes one change to every subscriber, dropping for
// subscribers whose queue is full. Safe to call from the dispatcher
// and from caller goroutines alike.
func (n *Node) emit(field string, value any) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for sub := range n.subs {
		select {
		case sub <- Change{Field: field, Value: value}:
		default:
			logging.Trace().Str("node", n.name).Str("field", field).
				Msg("subscriber queue full, dropping change")
		}
	}
}

// OnBatchResult registers a handler for streamed batch render results.
// Results are fanned out untouched, in wire order.
func (n *Node) OnBatchResult(fn func(protocol.RenderBatchResult)) {
	n.batchMu.Lock()
	n.onBatches = append(n.onBatches, fn)
	n.batchMu.Unlock()
}

// Name returns the caller-facing node label.
func (n *Node) Name() string { return n.name }

// Address returns the node daemon's TCP endpoint.
func (n *Node) Address() string { return n.address }

// RenderType returns the compute device hint for this node.
func (n *Node) RenderType() string { return n.renderType }

// Connected reports whether a transport is currently open.
func (n *Node) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

// ComputerName returns the machine name reported by the node.
func (n *Node) ComputerName() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.computerName
}

// OS returns the operating system reported by the node.
func (n *Node) OS() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.os
}

// Cores returns the node's core count, -1 when unknown.
func (n *Node) Cores() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cores
}

// Performance returns the user-assigned weight; values <= 0 mean "use
// core count".
func (n *Node) Performance() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.performance
}

// PerformanceScorePP returns the measured pixels-per-millisecond score
// from the most recent completed render, 0 before any render.
func (n *Node) PerformanceScorePP() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.performanceScorePP
}

// UpdatePerformance records a measured render of pixels pixels in ms
// milliseconds. ms must be positive.
func (n *Node) UpdatePerformance(pixels int64, ms float64) error {
	if ms <= 0 {
		return fmt.Errorf("update performance: ms must be positive, got %v", ms)
	}
	n.mu.Lock()
	n.performanceScorePP = float64(pixels) / ms
	score := n.performanceScorePP
	n.mu.Unlock()
	n.emit(FieldPerformanceScore, score)
	return nil
}

// SelectSession makes sessionID the node's active session. One session
// is active per node at a time.
func (n *Node) SelectSession(sessionID string) {
	n.mu.Lock()
	n.selectedSessionID = sessionID
	n.mu.Unlock()
	n.emit(FieldSelectedSession, sessionID)
}

// SelectedSession returns the active session id, empty when none.
func (n *Node) SelectedSession() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.selectedSessionID
}

// IsSessionSynced reports whether the given session's file state was
// verified current on the node.
func (n *Node) IsSessionSynced(sessionID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.synced[sessionID]
}

// IsSynced reports sync state for the selected session.
func (n *Node) IsSynced() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.synced[n.selectedSessionID]
}

// LastFileID returns the most recent verified file revision.
func (n *Node) LastFileID() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastFileID
}

// markSynced records a verified sync: the only path that flips a
// session to synced and advances lastFileID.
func (n *Node) markSynced(sessionID string, fileID int64) {
	n.mu.Lock()
	n.synced[sessionID] = true
	n.lastFileID = fileID
	n.mu.Unlock()
	n.emit(FieldSynced, sessionID)
	n.emit(FieldLastFileID, fileID)
}

// setUnsynced records a failed or unverified sync for a session.
func (n *Node) setUnsynced(sessionID string) {
	n.mu.Lock()
	n.synced[sessionID] = false
	n.mu.Unlock()
	n.emit(FieldSynced, sessionID)
}

// clearSyncedAll flips every tracked session to unsynced. Runs on each
// fresh disconnect event.
func (n *Node) clearSyncedAll() {
	n.mu.Lock()
	for sessionID := range n.synced {
		n.synced[sessionID] = false
	}
	n.mu.Unlock()
	n.emit(FieldSynced, "")
}

// AvailableVersions snapshots the Blender versions known present on
// the node within the current connection.
func (n *Node) AvailableVersions() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	versions := make([]string, 0, len(n.availableVersions))
	for v := range n.availableVersions {
		versions = append(versions, v)
	}
	return versions
}

// HasVersion reports whether version was confirmed present on the
// current connection.
func (n *Node) HasVersion(version string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.availableVersions[version]
	return ok
}

func (n *Node) addAvailableVersion(version string) {
	n.mu.Lock()
	n.availableVersions[version] = struct{}{}
	n.mu.Unlock()
	n.emit(FieldVersions, version)
}

// IsPrepared reports whether a Prepare succeeded on this node.
func (n *Node) IsPrepared() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isPrepared
}

// Activity returns the current activity label, empty when idle.
func (n *Node) Activity() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.activity
}

// ActivityProgress returns progress 0..100, or -1 for indeterminate.
func (n *Node) ActivityProgress() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.activityProgress
}

// IsIdle reports whether no activity is in progress.
func (n *Node) IsIdle() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.activity == ""
}

// HasActivityProgress reports whether determinate progress is known.
func (n *Node) HasActivityProgress() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.activityProgress > 0
}

// setActivity updates the activity label and progress together.
func (n *Node) setActivity(activity string, progress float64) {
	n.mu.Lock()
	n.activity = activity
	n.activityProgress = progress
	n.mu.Unlock()
	n.emit(FieldActivity, activity)
	n.emit(FieldActivityProgress, progress)
}

// clearActivity resets the node to idle; deferred on every operation
// exit path.
func (n *Node) clearActivity() {
	n.setActivity("", -1)
}

// Exception returns the last user-visible error, empty when none.
func (n *Node) Exception() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.exception
}

// ClearException explicitly clears the displayed error.
func (n *Node) ClearException() {
	n.setException("")
}

func (n *Node) setException(message string) {
	n.mu.Lock()
	n.exception = message
	n.mu.Unlock()
	n.emit(FieldException, message)
}

// LastStatus returns the most recent status label from the node.
func (n *Node) LastStatus() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastStatus
}

func (n *Node) setLastStatus(status string) {
	n.mu.Lock()
	n.lastStatus = status
	n.mu.Unlock()
	n.emit(FieldLastStatus, status)
}

// CurrentTaskID returns the in-flight render/peek task id, empty when
// none.
func (n *Node) CurrentTaskID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.currentTaskID
}

// beginTask claims the single task slot. At most one render/peek is in
// flight per node; a second caller fails synchronously.
func (n *Node) beginTask(taskID string, cancel context.CancelFunc) error {
	n.mu.Lock()
	if n.currentTaskID != "" {
		n.mu.Unlock()
		return ErrAlreadyRendering
	}
	n.currentTaskID = taskID
	n.taskCancel = cancel
	n.mu.Unlock()
	n.emit(FieldCurrentTaskID, taskID)
	return nil
}

// endTask releases the task slot and resets activity, on every exit
// path.
func (n *Node) endTask() {
	n.mu.Lock()
	n.currentTaskID = ""
	if n.taskCancel != nil {
		n.taskCancel()
		n.taskCancel = nil
	}
	n.mu.Unlock()
	n.emit(FieldCurrentTaskID, "")
	n.clearActivity()
}

// ConsoleLog snapshots the append-only buffer of remote console
// output.
func (n *Node) ConsoleLog() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, len(n.consoleLog))
	copy(out, n.consoleLog)
	return out
}

func (n *Node) appendConsole(line string) {
	n.mu.Lock()
	n.consoleLog = append(n.consoleLog, line)
	n.mu.Unlock()
	n.emit(FieldConsoleLog, line)
}

// connection returns the live Connection, nil when detached.
func (n *Node) connection() *Connection {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn
}

// requestTyped sends a request over the node's connection and decodes
// the matching reply payload.
func requestTyped[T any](ctx context.Context, n *Node, msg protocol.Message, expect protocol.MessageType) (*T, error) {
	conn := n.connection()
	if conn == nil {
		return nil, ErrDisconnected
	}
	env, err := conn.Request(ctx, msg, expect)
	if err != nil {
		return nil, err
	}
	var out T
	if err := env.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// handleEvent routes one unsolicited server message. Runs on the
// connection's dispatcher goroutine.
func (n *Node) handleEvent(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRenderInfo:
		var info protocol.RenderInfo
		if err := env.Decode(&info); err != nil {
			logging.Warn().Err(err).Str("node", n.name).Msg("bad renderInfo event")
			return
		}
		// Stale progress for a finished or foreign task is dropped.
		if info.TaskID == "" || info.TaskID != n.CurrentTaskID() {
			return
		}
		progress := float64(0)
		if info.TilesTotal > 0 {
			progress = float64(info.TilesFinished) / float64(info.TilesTotal) * 100
		}
		n.setActivity(fmt.Sprintf("Rendering (%d/%d)", info.TilesFinished, info.TilesTotal), progress)

	case protocol.TypeRenderBatchResult:
		var result protocol.RenderBatchResult
		if err := env.Decode(&result); err != nil {
			logging.Warn().Err(err).Str("node", n.name).Msg("bad renderBatchResult event")
			return
		}
		n.batchMu.RLock()
		handlers := n.onBatches
		n.batchMu.RUnlock()
		for _, fn := range handlers {
			fn(result)
		}

	case protocol.TypeActivity:
		var activity protocol.Activity
		if err := env.Decode(&activity); err != nil {
			logging.Warn().Err(err).Str("node", n.name).Msg("bad activity event")
			return
		}
		n.setActivity(activity.Activity, activity.Progress)

	case protocol.TypeConsoleActivity:
		var console protocol.ConsoleActivity
		if err := env.Decode(&console); err != nil {
			return
		}
		n.appendConsole(console.Output)

	case protocol.TypeDisconnected:
		var notice protocol.Disconnected
		if err := env.Decode(&notice); err != nil {
			return
		}
		n.setLastStatus("disconnected by node")
		if notice.IsError {
			n.setException(notice.Reason)
		}

	default:
		logging.Debug().Str("node", n.name).Str("type", string(env.Type)).
			Msg("unhandled event")
	}
}
