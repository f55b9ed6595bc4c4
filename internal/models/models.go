// Package models holds the shared data types for the share API, the
// document store, and the collaboration hub.
package models

import "time"

// Render modes for a Document.
const (
	RenderModeMarkdown = "markdown"
	RenderModeHTML     = "html"
)

// Metadata is the free-form mapping carried on a Document. Values are any
// JSON-decodable value; nothing here restricts them, and the map
// round-trips through JSON and the store's jsonb column.
type Metadata map[string]interface{}

// Recognized metadata keys. Unknown keys are stored, not rejected.
const (
	MetaSource     = "source"
	MetaTags       = "tags"
	MetaCreatedVia = "createdVia"
)

// Document is the persisted row backing a shared note.
type Document struct {
	ID         string    `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Markdown   string    `json:"markdown" db:"markdown"`
	HTML       string    `json:"html" db:"html"`
	RenderMode string    `json:"renderMode" db:"render_mode"`
	CRDTState  []byte    `json:"-" db:"crdt_state"`
	Metadata   Metadata  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// Patch is a partial update to a Document. Pointer fields distinguish
// "not supplied" from "supplied as empty".
type Patch struct {
	Title    *string
	Markdown *string
	HTML     *string
	Metadata Metadata
}

// Presence is a peer's ephemeral awareness blob: display name, color,
// cursor/selection. Never persisted.
type Presence struct {
	PeerID string          `json:"peerId"`
	Name   string          `json:"name,omitempty"`
	Color  string          `json:"color,omitempty"`
	Cursor *CursorPosition `json:"cursor,omitempty"`
	Clock  uint64          `json:"clock"`
}

// CursorPosition is a text selection anchor/head pair.
type CursorPosition struct {
	Anchor int `json:"anchor"`
	Head   int `json:"head"`
}

// Peer identifies one connected WebSocket session within a live document.
type Peer struct {
	ID          string
	DisplayName string
	Anonymous   bool
}
