package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Provenance tags describing how a message's content was produced.
const (
	ProvenanceRaw           = "raw"
	ProvenanceRefined       = "refined"
	ProvenancePostProcessed = "post-processed"
)

// Message is one turn in a session's conversation log. Immutable once
// appended.
type Message struct {
	ID         string
	Role       string
	Content    string
	Provenance string
	CreatedAt  time.Time
}

// Session is a durable conversation log identified by an opaque ID.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContextDoc is an ingested source document. Its text is chunked and
// embedded asynchronously; VectorIDs records the resulting vector rows.
type ContextDoc struct {
	ID        string
	Title     string
	Content   string
	Source    string
	Tags      string // JSON array stored as text
	CreatedAt time.Time
	VectorIDs string // JSON array stored as text
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
