// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

package protocol

// Client version advertised during the protocol handshake.
const (
	ClientVersionMajor = 1
	ClientVersionMinor = 1
	ClientVersionPatch = 3

	// ProtocolVersion must match the node daemon exactly; the handshake
	// fails on any mismatch.
	ProtocolVersion = 4
)

// MessageType discriminates envelope payloads.
type MessageType string

// Client → node request types.
const (
	TypeCheckProtocol      MessageType = "checkProtocol"
	TypeAuth               MessageType = "auth"
	TypeComputerInfo       MessageType = "computerInfo"
	TypePrepare            MessageType = "prepare"
	TypeIsVersionAvailable MessageType = "isVersionAvailable"
	TypeSyncStart          MessageType = "sync"
	TypeSyncUpload         MessageType = "syncUpload"
	TypeSyncComplete       MessageType = "syncComplete"
	TypeSyncNetwork        MessageType = "syncNetwork"
	TypeCheckSync          MessageType = "checkSync"
	TypeRender             MessageType = "render"
	TypeRenderBatch        MessageType = "renderBatch"
	TypeBlenderPeek        MessageType = "blenderPeek"
	TypeIsBusy             MessageType = "isBusy"
	TypeCancelRender       MessageType = "cancelRender"
	TypeRecover            MessageType = "recover"
)

// Node → client response types.
const (
	TypeCheckProtocolResponse      MessageType = "checkProtocolResponse"
	TypeAuthResponse               MessageType = "authResponse"
	TypeComputerInfoResponse       MessageType = "computerInfoResponse"
	TypePrepareResponse            MessageType = "prepareResponse"
	TypeIsVersionAvailableResponse MessageType = "isVersionAvailableResponse"
	TypeSyncResponse               MessageType = "syncResponse"
	TypeSyncUploadResponse         MessageType = "syncUploadResponse"
	TypeSyncCompleteResponse       MessageType = "syncCompleteResponse"
	TypeCheckSyncResponse          MessageType = "checkSyncResponse"
	TypeRenderResponse             MessageType = "renderResponse"
	TypeRenderBatchResponse        MessageType = "renderBatchResponse"
	TypeBlenderPeekResponse        MessageType = "blenderPeekResponse"
	TypeIsBusyResponse             MessageType = "isBusyResponse"
	TypeRecoverResponse            MessageType = "recoverResponse"
)

// Node → client unsolicited event types.
const (
	TypeRenderInfo        MessageType = "renderInfo"
	TypeRenderBatchResult MessageType = "renderBatchResult"
	TypeActivity          MessageType = "activity"
	TypeConsoleActivity   MessageType = "consoleActivity"
	TypeDisconnected      MessageType = "disconnected"
)

// Message is implemented by every payload that can be placed in an
// envelope by the client.
type Message interface {
	Kind() MessageType
}

// CheckProtocol opens every connection. The node rejects clients whose
// protocol version differs from its own.
type CheckProtocol struct {
	ClientMajor     int `json:"clientMajor"`
	ClientMinor     int `json:"clientMinor"`
	ClientPatch     int `json:"clientPatch"`
	ProtocolVersion int `json:"protocolVersion"`
}

func (CheckProtocol) Kind() MessageType { return TypeCheckProtocol }

// CheckProtocolResponse reports the node's protocol version and whether
// it demands authentication before further traffic.
type CheckProtocolResponse struct {
	ProtocolVersion int  `json:"protocolVersion"`
	RequireAuth     bool `json:"requireAuth"`
}

// Auth carries the node password verbatim. The transport is plaintext;
// this is LAN-grade access control, not security.
type Auth struct {
	Pass string `json:"pass"`
}

func (Auth) Kind() MessageType { return TypeAuth }

// AuthResponse reports the authentication outcome.
type AuthResponse struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

// ComputerInfo asks the node for its machine identity and capability.
type ComputerInfo struct{}

func (ComputerInfo) Kind() MessageType { return TypeComputerInfo }

// ComputerInfoResponse describes the node machine.
type ComputerInfoResponse struct {
	Name  string `json:"name"`
	OS    string `json:"os"`
	Cores int    `json:"cores"`
}

// Prepare asks the node to download and install a Blender version.
type Prepare struct {
	Version string `json:"version"`
}

func (Prepare) Kind() MessageType { return TypePrepare }

// PrepareResponse reports the provisioning outcome.
type PrepareResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// IsVersionAvailable probes whether a Blender version is already present
// on the node without triggering a download.
type IsVersionAvailable struct {
	Version string `json:"version"`
}

func (IsVersionAvailable) Kind() MessageType { return TypeIsVersionAvailable }

// IsVersionAvailableResponse reports the probe outcome.
type IsVersionAvailableResponse struct {
	Success bool `json:"success"`
}

// SyncStart initiates a chunked file upload for (SessionID, FileID).
type SyncStart struct {
	SessionID   string      `json:"sessionId"`
	FileID      int64       `json:"fileId"`
	Compression Compression `json:"compression"`
}

func (SyncStart) Kind() MessageType { return TypeSyncStart }

// SyncResponse answers SyncStart and SyncNetwork. SameFile short-circuits
// the transfer when the node already holds this exact file revision.
type SyncResponse struct {
	Success  bool   `json:"success"`
	SameFile bool   `json:"sameFile"`
	UploadID string `json:"uploadId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// SyncUpload carries one chunk of file data for an open upload.
type SyncUpload struct {
	UploadID string `json:"uploadId"`
	Data     []byte `json:"data"`
}

func (SyncUpload) Kind() MessageType { return TypeSyncUpload }

// SyncUploadResponse acknowledges a single chunk.
type SyncUploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SyncComplete finalizes an upload after the last chunk.
type SyncComplete struct {
	UploadID string `json:"uploadId"`
}

func (SyncComplete) Kind() MessageType { return TypeSyncComplete }

// SyncCompleteResponse acknowledges upload finalization.
type SyncCompleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SyncNetwork points the node at a file on a network share instead of
// uploading it, with one path per operating system.
type SyncNetwork struct {
	SessionID   string `json:"sessionId"`
	FileID      int64  `json:"fileId"`
	WindowsPath string `json:"windowsPath,omitempty"`
	LinuxPath   string `json:"linuxPath,omitempty"`
	MacOSPath   string `json:"macOSPath,omitempty"`
}

func (SyncNetwork) Kind() MessageType { return TypeSyncNetwork }

// CheckSync verifies that the node holds (SessionID, FileID) as current.
// Sync state is only trusted after this probe succeeds.
type CheckSync struct {
	SessionID string `json:"sessionId"`
	FileID    int64  `json:"fileId"`
}

func (CheckSync) Kind() MessageType { return TypeCheckSync }

// CheckSyncResponse reports the verification outcome.
type CheckSyncResponse struct {
	Success bool `json:"success"`
}

// RenderSettings parameterize a single render. Region borders are
// normalized 0..1 coordinates; Crop trims the output to the region.
type RenderSettings struct {
	Frame       int     `json:"frame"`
	ResolutionX int     `json:"resolutionX"`
	ResolutionY int     `json:"resolutionY"`
	Samples     int     `json:"samples"`
	FPS         int     `json:"fps,omitempty"`
	Engine      string  `json:"engine"`
	RenderType  string  `json:"renderType,omitempty"`
	Cores       int     `json:"cores,omitempty"`
	Denoiser    string  `json:"denoiser,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	X2          float64 `json:"x2"`
	Y2          float64 `json:"y2"`
	Crop        bool    `json:"crop,omitempty"`
}

// Render requests a single render of the synced scene file.
type Render struct {
	TaskID    string         `json:"taskId"`
	SessionID string         `json:"sessionId"`
	FileID    int64          `json:"fileId"`
	Version   string         `json:"version"`
	Settings  RenderSettings `json:"settings"`
}

func (Render) Kind() MessageType { return TypeRender }

// RenderResponse carries the finished image for a single render.
type RenderResponse struct {
	TaskID  string `json:"taskId"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    []byte `json:"data,omitempty"`
}

// RenderBatch requests several renders in one task; results stream back
// as RenderBatchResult events.
type RenderBatch struct {
	TaskID    string           `json:"taskId"`
	SessionID string           `json:"sessionId"`
	FileID    int64            `json:"fileId"`
	Version   string           `json:"version"`
	Settings  []RenderSettings `json:"settings"`
}

func (RenderBatch) Kind() MessageType { return TypeRenderBatch }

// RenderBatchResponse closes a batch task after all results streamed.
type RenderBatchResponse struct {
	TaskID  string `json:"taskId"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// BlenderPeek inspects a synced scene file without rendering it.
type BlenderPeek struct {
	TaskID    string `json:"taskId"`
	SessionID string `json:"sessionId"`
	FileID    int64  `json:"fileId"`
	Version   string `json:"version"`
}

func (BlenderPeek) Kind() MessageType { return TypeBlenderPeek }

// BlenderPeekResponse describes the scene: output dimensions, frame
// range, sampling, and the cameras present.
type BlenderPeekResponse struct {
	TaskID         string   `json:"taskId"`
	Success        bool     `json:"success"`
	Message        string   `json:"message,omitempty"`
	RenderWidth    int      `json:"renderWidth"`
	RenderHeight   int      `json:"renderHeight"`
	FrameStart     int      `json:"frameStart"`
	FrameEnd       int      `json:"frameEnd"`
	Samples        int      `json:"samples"`
	Engine         string   `json:"engine,omitempty"`
	Cameras        []string `json:"cameras,omitempty"`
	SelectedCamera string   `json:"selectedCamera,omitempty"`
}

// IsBusy asks whether the node is currently rendering.
type IsBusy struct{}

func (IsBusy) Kind() MessageType { return TypeIsBusy }

// IsBusyResponse reports node readiness.
type IsBusyResponse struct {
	IsBusy bool `json:"isBusy"`
}

// CancelRender aborts the node's current render for a session. Sent
// oneway; the in-flight render request resolves separately.
type CancelRender struct {
	SessionID string `json:"sessionId"`
}

func (CancelRender) Kind() MessageType { return TypeCancelRender }

// Recover reclaims named sessions on a fresh connection after a drop.
type Recover struct {
	SessionIDs []string `json:"sessionIds"`
}

func (Recover) Kind() MessageType { return TypeRecover }

// RecoverResponse reports whether the node restored the sessions.
type RecoverResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RenderInfo is a progress event for the current render task.
type RenderInfo struct {
	TaskID        string `json:"taskId"`
	TilesFinished int    `json:"tilesFinished"`
	TilesTotal    int    `json:"tilesTotal"`
}

// RenderBatchResult streams one finished frame of a batch render.
type RenderBatchResult struct {
	TaskID  string `json:"taskId"`
	Frame   int    `json:"frame"`
	Success bool   `json:"success"`
	Data    []byte `json:"data,omitempty"`
}

// Activity is a node-pushed activity label, progress −1 meaning
// indeterminate.
type Activity struct {
	Activity string  `json:"activity"`
	Progress float64 `json:"progress"`
}

// ConsoleActivity forwards a line of the node's Blender console output.
type ConsoleActivity struct {
	Output string `json:"output"`
}

// Disconnected is the node's parting notice before it closes the
// transport.
type Disconnected struct {
	IsError bool   `json:"isError"`
	Reason  string `json:"reason,omitempty"`
}
