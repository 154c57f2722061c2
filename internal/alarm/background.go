package alarm

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// BackgroundKey is the redis set of instances that accepted background alarm
// delivery.
const BackgroundKey = "alarm:background"

type Registrar interface {
	Register(ctx context.Context) error
}

// Background runs a Registrar at most once per process.
type Background struct {
	registrar Registrar
	once      sync.Once
	ok        bool
	err       error
}

func NewBackground(r Registrar) *Background {
	return &Background{registrar: r}
}

func (b *Background) Register(ctx context.Context) (bool, error) {
	b.once.Do(func() {
		if b.registrar == nil {
			b.err = &BackgroundRegistrationError{Err: errors.New("no registrar")}
		} else if err := b.registrar.Register(ctx); err != nil {
			b.err = &BackgroundRegistrationError{Err: err}
		} else {
			b.ok = true
		}
		if b.err != nil {
			log.Printf("%v, alarms limited to foreground", b.err)
		}
	})
	return b.ok, b.err
}

type RedisRegistrar struct {
	rdb    *redis.Client
	member string
}

func NewRedisRegistrar(rdb *redis.Client, member string) *RedisRegistrar {
	return &RedisRegistrar{rdb: rdb, member: member}
}

func (r *RedisRegistrar) Register(ctx context.Context) error {
	if r.rdb == nil {
		return errors.New("redis unavailable")
	}
	return r.rdb.SAdd(ctx, BackgroundKey, r.member).Err()
}
