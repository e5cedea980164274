package entity

import (
	"fmt"
	"sort"
	"time"

	"github.com/mbeoliero/huddle/pkg/constant"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// GenDirectDedupKey generates the dedup key of a direct conversation
// Format: si_{min(userA,userB)}:{max(userA,userB)}
// Uses ":" as separator between userIds to support userIds containing "_"
func GenDirectDedupKey(userA, userB string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	return fmt.Sprintf("%s%s:%s", constant.DirectDedupPrefix, users[0], users[1])
}

// GenGroupDedupKey generates the dedup key of a group created with an idempotency token
// Format: sg_{creatorId}:{token}
func GenGroupDedupKey(creatorId, token string) string {
	return fmt.Sprintf("%s%s:%s", constant.GroupDedupPrefix, creatorId, token)
}
