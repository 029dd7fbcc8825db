package pinagent

// TimestampLayout is the ISO-8601 UTC layout the platform uses for message
// timestamps. Values carry no zone suffix; lexical order equals chronological
// order, which is what the poller watermark relies on.
const TimestampLayout = "2006-01-02T15:04:05"

// MediaType enumerates the media kinds a message may carry.
type MediaType string

const (
	MediaNone  MediaType = "none"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaFile  MediaType = "file"
)

// Valid reports whether the media type is one the platform accepts.
func (m MediaType) Valid() bool {
	switch m {
	case MediaNone, MediaImage, MediaVideo, MediaAudio, MediaFile:
		return true
	}
	return false
}

// MessageType distinguishes user messages from agent replies.
type MessageType string

const (
	MessageTypeUser  MessageType = "user"
	MessageTypeAgent MessageType = "agent"
)

// Agent is the platform-side record created by registration.
type Agent struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Ticker      string         `json:"ticker"`
	Cover       string         `json:"cover,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
	UpdatedAt   string         `json:"updated_at,omitempty"`
}

// RegisterAgentRequest is the payload for RegisterAgent.
type RegisterAgentRequest struct {
	Name        string         `json:"name"`
	Ticker      string         `json:"ticker"`
	Description string         `json:"description"`
	Cover       string         `json:"cover,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// UpdateAgentRequest is the payload for UpdateAgent. Zero-valued fields are
// omitted so the server only touches what the caller set.
type UpdateAgentRequest struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name,omitempty"`
	Ticker      string         `json:"ticker,omitempty"`
	Description string         `json:"description,omitempty"`
	Cover       string         `json:"cover,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Message is a single chat message delivered by the platform.
type Message struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Type      MessageType    `json:"message_type"`
	Content   string         `json:"content"`
	MediaType MediaType      `json:"media_type,omitempty"`
	MediaURL  string         `json:"media_url,omitempty"`
	Metadata  map[string]any `json:"meta_data,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// Persona is the user-facing profile bound to a chat session. Agents read it,
// never write it.
type Persona struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name,omitempty"`
	Avatar   string         `json:"avatar,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SendMessageRequest describes a reply into a session.
type SendMessageRequest struct {
	SessionID string
	Content   string
	MediaType MediaType
	MediaURL  string
	Metadata  map[string]any
}

// MediaUpload is the server response to a media upload.
type MediaUpload struct {
	MediaType MediaType `json:"media_type"`
	MediaURL  string    `json:"media_url"`
	Key       string    `json:"key,omitempty"`
}

type replyPayload struct {
	AgentID   int64          `json:"agent_id"`
	PersonaID int64          `json:"persona_id"`
	Content   string         `json:"content"`
	MediaType MediaType      `json:"media_type"`
	MediaURL  string         `json:"media_url,omitempty"`
	Metadata  map[string]any `json:"meta_data"`
}

type pollPayload struct {
	AgentID        int64  `json:"agent_id"`
	SinceTimestamp string `json:"since_timestamp"`
}
