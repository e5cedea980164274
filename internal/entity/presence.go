package entity

// PresenceEntry represents one live session of a user
type PresenceEntry struct {
	SessionId             string `json:"session_id"`
	UserId                string `json:"user_id"`
	ConnectedAt           int64  `json:"connected_at"`
	LastHeartbeatAt       int64  `json:"last_heartbeat_at"`
	WatchedConversationId string `json:"watched_conversation_id,omitempty"`
}
