package gateway

// WebSocket protocol identifiers
const (
	// Requests
	WSHeartbeat   = 1001 // Refresh presence, optionally naming the viewed conversation
	WSSendMsg     = 1003 // Append a message
	WSPullMsg     = 1005 // Read history after a seq
	WSSync        = 1006 // Read history and pin the live floor
	WSOnlineCount = 1007 // Count online participants

	// Server pushes
	WSPushEvent     = 2001 // Committed conversation event
	WSKickOnlineMsg = 2002 // Session closed by the server
	WSDataError     = 3001 // Undecodable request
)

// Query parameter keys
const (
	QueryToken      = "token"
	QuerySendId     = "send_id"
	QueryPlatformId = "platform_id"
)
