package sdk

// Conversation kinds
const (
	ConversationKindDirect = 1
	ConversationKindGroup  = 2
)

// Conversation status
const (
	ConversationStatusActive  = 0
	ConversationStatusDeleted = 1
)

// Participant roles
const (
	RoleMember = 0
	RoleAdmin  = 1
)

// Presence scopes
const (
	ScopeAnywhere = "anywhere"
	ScopeViewing  = "viewing"
)

// Event types pushed over the websocket
const (
	EventMessageAppended     = "message_appended"
	EventRosterChanged       = "roster_changed"
	EventConversationRenamed = "conversation_renamed"
	EventConversationDeleted = "conversation_deleted"
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// PlatformIdToName converts platform Id to name
func PlatformIdToName(platformId int) string {
	switch platformId {
	case PlatformIdIOS:
		return "iOS"
	case PlatformIdAndroid:
		return "Android"
	case PlatformIdWindows:
		return "Windows"
	case PlatformIdMacOS:
		return "macOS"
	case PlatformIdWeb:
		return "Web"
	default:
		return "Unknown"
	}
}
