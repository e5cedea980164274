// Package identity maps portal identifiers to chat user ids.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/mbeoliero/huddle/common"
	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/repository"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

// Resolver resolves user identifiers and display data
type Resolver interface {
	// Resolve maps a chat user id or a portal identifier to a user id.
	// It returns errcode.ErrNotFound when nobody matches.
	Resolve(ctx context.Context, identifier string) (string, error)
	// Lookup returns display data for the given users; unknown ids are omitted
	Lookup(ctx context.Context, userIds []string) (map[string]*entity.UserInfo, error)
}

// DBResolver reads the portal's users table
type DBResolver struct {
	users *repository.UserRepo
}

// NewDBResolver creates a DBResolver
func NewDBResolver(users *repository.UserRepo) *DBResolver {
	return &DBResolver{users: users}
}

// Resolve implements Resolver
func (r *DBResolver) Resolve(ctx context.Context, identifier string) (string, error) {
	raw := strings.TrimSpace(identifier)
	if common.IsIMUserId(raw) {
		user, err := r.users.GetById(ctx, raw)
		if err != nil {
			return "", errcode.ErrTransientStore.Wrap(err)
		}
		if user == nil {
			return "", errcode.ErrNotFound
		}
		return user.Id, nil
	}

	normalized, err := common.NormalizeIdentifier(raw)
	if err != nil {
		return "", errcode.ErrNotFound
	}
	user, err := r.users.GetByIdentifier(ctx, normalized)
	if err != nil {
		return "", errcode.ErrTransientStore.Wrap(err)
	}
	if user == nil {
		return "", errcode.ErrNotFound
	}
	return user.Id, nil
}

// Lookup implements Resolver
func (r *DBResolver) Lookup(ctx context.Context, userIds []string) (map[string]*entity.UserInfo, error) {
	users, err := r.users.GetByIds(ctx, userIds)
	if err != nil {
		return nil, errcode.ErrTransientStore.Wrap(err)
	}
	out := make(map[string]*entity.UserInfo, len(users))
	for _, u := range users {
		out[u.Id] = u.ToUserInfo()
	}
	return out, nil
}

// StaticResolver serves a fixed user list, for tests and the memory driver
type StaticResolver struct {
	mu           sync.RWMutex
	byId         map[string]*entity.User
	byIdentifier map[string]*entity.User
}

// NewStaticResolver creates a StaticResolver
func NewStaticResolver(users ...*entity.User) *StaticResolver {
	r := &StaticResolver{
		byId:         make(map[string]*entity.User),
		byIdentifier: make(map[string]*entity.User),
	}
	for _, u := range users {
		r.Add(u)
	}
	return r
}

// Add registers a user
func (r *StaticResolver) Add(u *entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byId[u.Id] = u
	if key, err := common.NormalizeIdentifier(u.Identifier); err == nil {
		r.byIdentifier[key] = u
	}
}

// Resolve implements Resolver
func (r *StaticResolver) Resolve(_ context.Context, identifier string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	raw := strings.TrimSpace(identifier)
	if u, ok := r.byId[raw]; ok {
		return u.Id, nil
	}
	key, err := common.NormalizeIdentifier(raw)
	if err != nil {
		return "", errcode.ErrNotFound
	}
	if u, ok := r.byIdentifier[key]; ok {
		return u.Id, nil
	}
	return "", errcode.ErrNotFound
}

// Lookup implements Resolver
func (r *StaticResolver) Lookup(_ context.Context, userIds []string) (map[string]*entity.UserInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*entity.UserInfo, len(userIds))
	for _, id := range userIds {
		if u, ok := r.byId[id]; ok {
			out[id] = u.ToUserInfo()
		}
	}
	return out, nil
}
