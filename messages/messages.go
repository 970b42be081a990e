package messages

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key and channel patterns of the realtime store, scoped per session.

// Message types published on a session's update channel
type MessageType string

const (
	MsgBlocksPushed        MessageType = "blocks_pushed"
	MsgEditRecorded        MessageType = "edit_recorded"
	MsgResolutionRecorded  MessageType = "resolution_recorded"
	MsgResolutionsCleared  MessageType = "resolutions_cleared"
	MsgLockChanged         MessageType = "lock_changed"
	MsgPresenceChanged     MessageType = "presence_changed"
	MsgUpstreamOrdersMoved MessageType = "upstream_orders_moved"
)

// Key kinds
type KeyKind string

const (
	KeyBlocks      KeyKind = "blocks"
	KeyEdits       KeyKind = "edits"
	KeyResolutions KeyKind = "resolutions"
	KeyLock        KeyKind = "lock"
	KeyPresence    KeyKind = "presence"
	KeyUpdates     KeyKind = "updates"
)

// Key patterns
const (
	PatternBlocks      = "{prefix}:{session}:blocks"
	PatternEdits       = "{prefix}:{session}:edits"
	PatternResolutions = "{prefix}:{session}:resolutions"
	PatternLock        = "{prefix}:{session}:lock"
	PatternPresence    = "{prefix}:{session}:presence"
	PatternUpdates     = "{prefix}:{session}:updates"
)

// DefaultPrefix namespaces every key this module writes.
const DefaultPrefix = "prodsheet"

// Update is the payload published on a session's update channel.
type Update struct {
	Type    MessageType `json:"type"`
	Session string      `json:"session"`
	Key     string      `json:"key,omitempty"` // item key for edit/resolution updates
	Author  string      `json:"author,omitempty"`
	Origin  string      `json:"origin,omitempty"` // publishing connection, to drop echoes
}

// Encode serializes the update for publishing.
func (u Update) Encode() (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("encode update: %w", err)
	}
	return string(data), nil
}

// DecodeUpdate parses a published update.
func DecodeUpdate(payload string) (Update, error) {
	var u Update
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return Update{}, fmt.Errorf("decode update: %w", err)
	}
	if u.Type == "" {
		return Update{}, fmt.Errorf("decode update: missing type")
	}
	return u, nil
}

// KeyBuilder builds store keys from key kinds and parameters
type KeyBuilder struct {
	prefix  string
	session string
}

// NewKeyBuilder creates a builder for one session. An empty prefix uses DefaultPrefix.
func NewKeyBuilder(prefix, session string) *KeyBuilder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KeyBuilder{prefix: prefix, session: session}
}

// BuildKey builds a key from a key kind and extra parameters
func (b *KeyBuilder) BuildKey(kind KeyKind, params map[string]string) string {
	var pattern string

	switch kind {
	case KeyBlocks:
		pattern = PatternBlocks
	case KeyEdits:
		pattern = PatternEdits
	case KeyResolutions:
		pattern = PatternResolutions
	case KeyLock:
		pattern = PatternLock
	case KeyPresence:
		pattern = PatternPresence
	case KeyUpdates:
		pattern = PatternUpdates
	default:
		return ""
	}

	key := strings.ReplaceAll(pattern, "{prefix}", b.prefix)
	key = strings.ReplaceAll(key, "{session}", b.session)

	for name, value := range params {
		key = strings.ReplaceAll(key, fmt.Sprintf("{%s}", name), value)
	}

	return key
}

// BuildEditField builds the hash field under which one item field's edit is stored
func (b *KeyBuilder) BuildEditField(itemKey, field string) string {
	return itemKey + "#" + field
}

// SplitEditField reverses BuildEditField
func (b *KeyBuilder) SplitEditField(hashField string) (string, string, bool) {
	i := strings.LastIndex(hashField, "#")
	if i < 0 {
		return "", "", false
	}
	return hashField[:i], hashField[i+1:], true
}

// Session returns the session the builder is scoped to
func (b *KeyBuilder) Session() string {
	return b.session
}
