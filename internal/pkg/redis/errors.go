package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// 预定义错误
var (
	ErrNil            = redis.Nil
	ErrLockHeld       = errors.New("redis: lock held by another owner")
	ErrLockLost       = errors.New("redis: lock token mismatch or expired")
	ErrNotInitialized = errors.New("redis: client not initialized")
)

// IsNil 判断是否是 Key 不存在错误
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsLockHeld reports whether err means another owner holds the lock.
func IsLockHeld(err error) bool {
	return errors.Is(err, ErrLockHeld)
}
