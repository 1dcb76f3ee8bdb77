package usercache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/pders01/synfeed/internal/model"
)

// Hash fields of a bundle. fieldUID is the sentinel.
const (
	fieldUID         = "uid"
	fieldNickname    = "nickname"
	fieldUsername    = "username"
	fieldAvatar      = "avatar"
	fieldGender      = "gender"
	fieldAccountType = "acc_type"
	fieldVerified    = "verify"
	fieldBanned      = "banned"
)

// Redis keeps bundles in one hash per user so several processes can share
// resolved projections. A single HSET writes every field, sentinel included.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// RedisClient builds a client for addr and db.
func RedisClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
}

func (r *Redis) key(id string) string {
	return r.prefix + "user:" + id
}

func (r *Redis) Get(ctx context.Context, id string) (model.UserProjection, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return model.UserProjection{}, false, fmt.Errorf("hgetall %s: %w", r.key(id), err)
	}
	uid, ok := fields[fieldUID]
	if !ok {
		return model.UserProjection{}, false, nil
	}
	verified, _ := strconv.ParseBool(fields[fieldVerified])
	banned, _ := strconv.ParseBool(fields[fieldBanned])
	return model.UserProjection{
		ID:          uid,
		Nickname:    fields[fieldNickname],
		Username:    fields[fieldUsername],
		AvatarURL:   fields[fieldAvatar],
		Gender:      fields[fieldGender],
		AccountType: fields[fieldAccountType],
		Verified:    verified,
		Banned:      banned,
	}, true, nil
}

func (r *Redis) Put(ctx context.Context, u model.UserProjection) error {
	err := r.client.HSet(ctx, r.key(u.ID), map[string]any{
		fieldUID:         u.ID,
		fieldNickname:    u.Nickname,
		fieldUsername:    u.Username,
		fieldAvatar:      u.AvatarURL,
		fieldGender:      u.Gender,
		fieldAccountType: u.AccountType,
		fieldVerified:    strconv.FormatBool(u.Verified),
		fieldBanned:      strconv.FormatBool(u.Banned),
	}).Err()
	if err != nil {
		return fmt.Errorf("hset %s: %w", r.key(u.ID), err)
	}
	return nil
}
