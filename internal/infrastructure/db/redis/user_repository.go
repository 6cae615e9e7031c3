package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aifix/chat-auth/internal/core/domain"
	"github.com/aifix/chat-auth/internal/core/ports"
)

const (
	defaultKeyPrefix = "chatauth"
	maxTxAttempts    = 3
)

// UserRepository stores each user as a JSON string.
// Key format:
//
//	<prefix>:user:<id>            user record
//	<prefix>:user_email:<email>   id owning email (claimed with SETNX)
//	<prefix>:users                set of all ids
type UserRepository struct {
	client *redis.Client
	prefix string

	// afterRead runs between the watched read and EXEC in Update. Tests only.
	afterRead func()
}

// NewUserRepository wraps client. An empty prefix selects "chatauth".
func NewUserRepository(client *redis.Client, prefix string) *UserRepository {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &UserRepository{client: client, prefix: prefix}
}

func (r *UserRepository) Init(context.Context) error { return nil }

func (r *UserRepository) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *UserRepository) Close() error { return r.client.Close() }

func (r *UserRepository) Insert(ctx context.Context, user *domain.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	claimed, err := r.client.SetNX(ctx, r.emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim email: %w", err)
	}
	if !claimed {
		return domain.ErrUserExists
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.userKey(user.ID), raw, 0)
		p.SAdd(ctx, r.indexKey(), user.ID)
		return nil
	})
	if err != nil {
		_ = r.client.Del(ctx, r.emailKey(user.Email)).Err()
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update rewrites an existing record. The record key is watched so a
// concurrent Delete aborts the write instead of being undone by it.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	key := r.userKey(user.ID)

	return r.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if r.afterRead != nil {
			r.afterRead()
		}

		emailChanged := current.Email != user.Email
		if emailChanged {
			if err := r.claimEmail(ctx, tx, user); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SetXX(ctx, key, raw, 0)
			if emailChanged {
				p.Del(ctx, r.emailKey(current.Email))
			}
			return nil
		})
		if err != nil {
			if emailChanged {
				_ = r.client.Del(ctx, r.emailKey(user.Email)).Err()
			}
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	key := r.userKey(id)
	return r.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key, r.emailKey(current.Email))
			p.SRem(ctx, r.indexKey(), id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

// claimEmail points the email index at user unless another id holds it.
func (r *UserRepository) claimEmail(ctx context.Context, tx *redis.Tx, user *domain.User) error {
	claimed, err := tx.SetNX(ctx, r.emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim email: %w", err)
	}
	if claimed {
		return nil
	}
	owner, err := tx.Get(ctx, r.emailKey(user.Email)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read email owner: %w", err)
	}
	if owner != user.ID {
		return domain.ErrUserExists
	}
	return nil
}

// watch runs fn under WATCH key, retrying when another client touched key
// between the read and EXEC.
func (r *UserRepository) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	var err error
	for i := 0; i < maxTxAttempts; i++ {
		err = r.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// getter is the read side shared by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *UserRepository) load(ctx context.Context, c getter, id string) (*domain.User, error) {
	raw, err := c.Get(ctx, r.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return decodeUser(raw)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.load(ctx, r.client, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	id, err := r.client.Get(ctx, r.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email index: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	users := make([]domain.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.userKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // removed between SMEMBERS and MGET
		}
		u, err := decodeUser([]byte(s))
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func (r *UserRepository) userKey(id string) string     { return r.prefix + ":user:" + id }
func (r *UserRepository) emailKey(email string) string { return r.prefix + ":user_email:" + email }
func (r *UserRepository) indexKey() string             { return r.prefix + ":users" }

func decodeUser(raw []byte) (*domain.User, error) {
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

var _ ports.UserRepository = (*UserRepository)(nil)
