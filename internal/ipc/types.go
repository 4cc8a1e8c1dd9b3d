// Package ipc implements the line-framed JSON request/response protocol
// the worker speaks over stdin/stdout: one Command in, one Response out,
// every frame UTF-8 JSON terminated by a single newline. The tagged-union
// shape (a "type" discriminator plus whichever fields that type carries)
// follows the teacher's own internal/a2a event types, generalized from
// SSE/JSON-RPC framing to the worker's own command table.
package ipc

import (
	"github.com/normanking/ghostspeaker/internal/config"
	"github.com/normanking/ghostspeaker/internal/voice"
)

// CommandType discriminates the Command tagged union.
type CommandType string

const (
	CmdInit                     CommandType = "Init"
	CmdSpeakAsync                CommandType = "SpeakAsync"
	CmdSyncStart                 CommandType = "SyncStart"
	CmdSyncPoll                  CommandType = "SyncPoll"
	CmdSyncCancel                CommandType = "SyncCancel"
	CmdPopDialog                 CommandType = "PopDialog"
	CmdGetEngineStatus           CommandType = "GetEngineStatus"
	CmdUpdateVolume              CommandType = "UpdateVolume"
	CmdUpdateSpeakByPunctuation  CommandType = "UpdateSpeakByPunctuation"
	CmdUpdateGhostVoices         CommandType = "UpdateGhostVoices"
	CmdUpdateInitialVoice        CommandType = "UpdateInitialVoice"
	CmdUpdateEngineAutoStart     CommandType = "UpdateEngineAutoStart"
	CmdBootEngine                CommandType = "BootEngine"
	CmdForceStopPlayback         CommandType = "ForceStopPlayback"
	CmdShutdown                  CommandType = "Shutdown"
	CmdGracefulShutdown          CommandType = "GracefulShutdown"
)

// Command is every frame the worker can read from stdin, flattened into
// one struct. Only the fields relevant to Type are populated; the rest
// are left at their zero value and omitted on the wire.
type Command struct {
	Type CommandType `json:"type"`

	// Init
	DLLDir string                `json:"dll_dir,omitempty"`
	Config *config.WorkerConfig  `json:"config,omitempty"`

	// SpeakAsync, SyncStart
	Text      string `json:"text,omitempty"`
	GhostName string `json:"ghost_name,omitempty"`

	// UpdateVolume
	Volume *float64 `json:"volume,omitempty"`

	// UpdateSpeakByPunctuation
	Enabled *bool `json:"enabled,omitempty"`

	// UpdateGhostVoices
	Info *voice.GhostVoiceInfo `json:"info,omitempty"`

	// UpdateInitialVoice
	Voice *voice.CharacterVoice `json:"voice,omitempty"`

	// UpdateEngineAutoStart, BootEngine
	Engine    *voice.Engine `json:"engine,omitempty"`
	AutoStart *bool         `json:"auto_start,omitempty"`
}

// ResponseType discriminates the Response tagged union.
type ResponseType string

const (
	RespOk           ResponseType = "Ok"
	RespError        ResponseType = "Error"
	RespSyncStarted  ResponseType = "SyncStarted"
	RespSyncStatus   ResponseType = "SyncStatus"
	RespDialog       ResponseType = "Dialog"
	RespEngineStatus ResponseType = "EngineStatus"
)

// SegmentInfo is the opaque-to-the-host view of one dialogue segment:
// enough for the front end to display raw_text in the balloon and know
// whether it was a silent pause.
type SegmentInfo struct {
	Text      string `json:"text"`
	RawText   string `json:"raw_text"`
	Scope     int    `json:"scope"`
	IsEllipsis bool  `json:"is_ellipsis"`
}

// SyncStateKind discriminates the inner state carried by a SyncStatus
// response.
type SyncStateKind string

const (
	SyncStatePlaying  SyncStateKind = "Playing"
	SyncStateReady    SyncStateKind = "Ready"
	SyncStateWaiting  SyncStateKind = "Waiting"
	SyncStateComplete SyncStateKind = "Complete"
)

// SyncStatus is the inner payload of a SyncStatus response.
type SyncStatus struct {
	State   SyncStateKind `json:"state"`
	Segment *SegmentInfo  `json:"segment,omitempty"`
	HasMore bool          `json:"has_more,omitempty"`
}

// EngineStatus is the inner payload of a GetEngineStatus response.
type EngineStatus struct {
	SpeakersInfo     map[voice.Engine][]voice.SpeakerInfo `json:"speakers_info"`
	ConnectionStatus map[voice.Engine]bool                `json:"connection_status"`
	EnginePaths      map[voice.Engine]string               `json:"engine_paths"`
	EngineAutoStart  map[voice.Engine]bool                 `json:"engine_auto_start"`
}

// Response is every frame the worker writes to stdout, flattened the
// same way Command is.
type Response struct {
	Type ResponseType `json:"type"`

	// Error
	Message string `json:"message,omitempty"`

	// SyncStarted
	FirstSegment *SegmentInfo `json:"first_segment,omitempty"`
	HasMore      bool         `json:"has_more,omitempty"`

	// SyncStatus
	State *SyncStatus `json:"state,omitempty"`

	// Dialog
	DialogMessage *string `json:"dialog_message,omitempty"`

	// EngineStatus
	EngineStatus *EngineStatus `json:"engine_status,omitempty"`
}

func ok() Response { return Response{Type: RespOk} }

func errorResponse(message string) Response {
	return Response{Type: RespError, Message: message}
}
