package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/pkg/constant"
)

// seqCacheTTL bounds how long a cached max seq outlives its last write
const seqCacheTTL = 24 * time.Hour

// cacheMaxSeqScript stores ARGV[1] unless the cached value is already at least
// as high, and refreshes the TTL either way. Returns 1 when it wrote.
var cacheMaxSeqScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// SeqRepo is the repository for sequence operations.
// MySQL holds the counter; Redis only caches it.
type SeqRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewSeqRepo creates a new SeqRepo
func NewSeqRepo(db *gorm.DB, rdb *redis.Client) *SeqRepo {
	return &SeqRepo{db: db, rdb: rdb}
}

func seqKey(conversationId string) string {
	return fmt.Sprintf(constant.RedisKeySeqConversation(), conversationId)
}

// GetMaxSeq gets the current max sequence for a conversation
func (r *SeqRepo) GetMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	// Try Redis first
	if r.rdb != nil {
		seq, err := r.rdb.Get(ctx, seqKey(conversationId)).Int64()
		if err == nil {
			return seq, nil
		}
		if !errors.Is(err, redis.Nil) {
			log.CtxWarn(ctx, "seq cache read failed, falling back to mysql: conversation_id=%s, error=%v", conversationId, err)
		}
	}

	maxSeq, err := r.LoadMaxSeq(ctx, r.db, conversationId, false)
	if err != nil {
		return 0, err
	}

	// Restore to Redis; a concurrent append that cached a higher value wins
	r.CacheMaxSeq(ctx, conversationId, maxSeq)

	return maxSeq, nil
}

// LoadMaxSeq reads the committed max sequence from MySQL.
// With forUpdate the row stays locked until tx ends.
func (r *SeqRepo) LoadMaxSeq(ctx context.Context, tx *gorm.DB, conversationId string, forUpdate bool) (int64, error) {
	q := tx.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var seqConv entity.SeqConversation
	err := q.Where("conversation_id = ?", conversationId).First(&seqConv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return seqConv.MaxSeq, nil
}

// Advance moves the counter from prev to next.
// It reports false when the stored value is no longer prev.
func (r *SeqRepo) Advance(ctx context.Context, tx *gorm.DB, conversationId string, prev, next int64) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&entity.SeqConversation{}).
		Where("conversation_id = ? AND max_seq = ?", conversationId, prev).
		Update("max_seq", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// EnsureSeqConversationExists ensures seq_conversations record exists
func (r *SeqRepo) EnsureSeqConversationExists(ctx context.Context, tx *gorm.DB, conversationId string) error {
	seqConv := &entity.SeqConversation{
		ConversationId: conversationId,
		MaxSeq:         0,
	}

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoNothing: true,
	}).Create(seqConv).Error
}

// CacheMaxSeq raises the cached max seq to seq. It never lowers it.
func (r *SeqRepo) CacheMaxSeq(ctx context.Context, conversationId string, seq int64) {
	if r.rdb == nil {
		return
	}
	err := cacheMaxSeqScript.Run(ctx, r.rdb, []string{seqKey(conversationId)}, seq, seqCacheTTL.Milliseconds()).Err()
	if err != nil {
		log.CtxWarn(ctx, "seq cache write failed: conversation_id=%s, error=%v", conversationId, err)
		r.InvalidateCache(ctx, conversationId)
	}
}

// InvalidateCache drops the cached max seq so the next read goes to MySQL
func (r *SeqRepo) InvalidateCache(ctx context.Context, conversationId string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Del(ctx, seqKey(conversationId)).Err(); err != nil {
		log.CtxError(ctx, "seq cache invalidate failed: conversation_id=%s, error=%v", conversationId, err)
	}
}
