package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrMachineBusy 同一设备的另一次派工请求正在进行
var ErrMachineBusy = errors.New("machine assignment in progress")

// MachineLocker 串行化同一设备的派工请求
type MachineLocker interface {
	Lock(ctx context.Context, machineID string) (unlock func(), err error)
}

// LocalMachineLocker 单进程内按设备加锁
type LocalMachineLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalMachineLocker() *LocalMachineLocker {
	return &LocalMachineLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalMachineLocker) Lock(_ context.Context, machineID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[machineID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[machineID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// 仅当值仍为本次持有的 token 时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisMachineLocker 多实例部署时通过 Redis SET NX PX 加锁
type RedisMachineLocker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	retries int
	backoff time.Duration
}

func NewRedisMachineLocker(client redis.UniversalClient, ttl time.Duration) *RedisMachineLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisMachineLocker{client: client, ttl: ttl, retries: 10, backoff: 50 * time.Millisecond}
}

func (l *RedisMachineLocker) key(machineID string) string {
	return "mes:assign:" + machineID
}

func (l *RedisMachineLocker) Lock(ctx context.Context, machineID string) (func(), error) {
	key := l.key(machineID)
	token := uuid.New().String()
	for attempt := 0; attempt <= l.retries; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire machine lock: %w", err)
		}
		if ok {
			return func() {
				releaseScript.Run(context.Background(), l.client, []string{key}, token)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	return nil, ErrMachineBusy
}
