package constant

// Conversation kinds
const (
	ConversationKindDirect = 1 // Two participants
	ConversationKindGroup  = 2 // Named, admin-managed
)

// Conversation status
const (
	ConversationStatusActive  = 0
	ConversationStatusDeleted = 1 // Terminal
)

// Participant status
const (
	ParticipantStatusActive  = 0
	ParticipantStatusRemoved = 1 // Removed or left
	ParticipantStatusBlocked = 2 // Removed, never re-added implicitly
)

// Participant roles
const (
	RoleMember = 0
	RoleAdmin  = 1
)

// Presence scopes for online counts
const (
	PresenceScopeAnywhere = "anywhere"
	PresenceScopeViewing  = "viewing"
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

// Dedup key prefixes
const (
	DirectDedupPrefix = "si_"
	GroupDedupPrefix  = "sg_"
)

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyOnline          = "online:%s"   // online:{user_id}
	redisKeySeqConversation = "seq:conv:%s" // seq:conv:{conversation_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "huddle:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyOnline() string          { return redisKeyPrefix + redisKeyOnline }
func RedisKeySeqConversation() string { return redisKeyPrefix + redisKeySeqConversation }
