package model

// User roles
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Source types
type SourceType string

const (
	SourceTypeFile             SourceType = "file"
	SourceTypeExternalTicketing SourceType = "external-ticketing"
	SourceTypeGenericAPI       SourceType = "generic-api"
)

// Source lifecycle status
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusConfigured SourceStatus = "configured"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusReady      SourceStatus = "ready"
	SourceStatusError      SourceStatus = "error"
)

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether a job in this status will never change again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Pipeline stages, in execution order
type Stage string

const (
	StageParsing       Stage = "parsing"
	StageDetectingPII  Stage = "detecting_pii"
	StageDeidentifying Stage = "deidentifying"
	StageMapping       Stage = "mapping"
	StageComplete      Stage = "complete"
)

// De-identification actions
type DeidAction string

const (
	ActionRedact   DeidAction = "redact"
	ActionTokenize DeidAction = "tokenize"
	ActionHash     DeidAction = "hash"
	ActionMask     DeidAction = "mask"
	ActionRemove   DeidAction = "remove"
)

// Dataset formats
type DatasetFormat string

const (
	FormatJSONL DatasetFormat = "jsonl"
	FormatCSV   DatasetFormat = "csv"
	FormatJSON  DatasetFormat = "json"
)
