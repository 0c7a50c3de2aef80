package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config Worker Pool 配置
type Config struct {
	Workers        int           `mapstructure:"workers"`        // worker 数量上限
	ExpiryDuration time.Duration `mapstructure:"expiryduration"` // 空闲 worker 回收间隔
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:        8,
		ExpiryDuration: time.Minute,
	}
}

// Validate checks the pool configuration.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return errors.New("workerpool: workers must be > 0")
	}
	if c.ExpiryDuration < 0 {
		return errors.New("workerpool: expiry duration must be >= 0")
	}
	return nil
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64
	Completed int64
	Failed    int64
	Running   int64
}

// Pool is a bounded goroutine pool backed by ants.
type Pool struct {
	pool   *ants.Pool
	logger *logger.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	running   atomic.Int64
}

// New 创建 Worker Pool
func New(cfg *Config, log *logger.Logger) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{logger: log.Named("workerpool")}

	opts := []ants.Option{
		ants.WithPanicHandler(func(rec interface{}) {
			p.failed.Add(1)
			p.logger.Error("worker panic", zap.Any("error", rec))
		}),
	}
	if cfg.ExpiryDuration > 0 {
		opts = append(opts, ants.WithExpiryDuration(cfg.ExpiryDuration))
	}

	antsPool, err := ants.NewPool(cfg.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool
	return p, nil
}

// Submit 提交任务. Blocks while every worker is busy.
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)
	err := p.pool.Submit(func() {
		p.running.Add(1)
		defer p.running.Add(-1)
		task()
		p.completed.Add(1)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		p.submitted.Add(-1)
		return ErrPoolClosed
	}
	return err
}

// Group returns a Group whose tasks run on p.
func (p *Pool) Group() *Group {
	return &Group{pool: p}
}

// Running 获取运行中的 worker 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Free 获取空闲 worker 数量
func (p *Pool) Free() int {
	return p.pool.Free()
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Running:   p.running.Load(),
	}
}

// Shutdown waits up to timeout for running tasks, then releases the pool.
func (p *Pool) Shutdown(timeout time.Duration) {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		p.logger.Warn("worker pool release timed out", zap.Error(err))
	}
}

// Group tracks a batch of tasks submitted to a Pool.
type Group struct {
	pool *Pool
	wg   sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// Go submits fn. A non-nil error from fn, or a failed submit, is
// collected and returned by Wait.
func (g *Group) Go(fn func() error) {
	g.wg.Add(1)
	err := g.pool.Submit(func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.pool.failed.Add(1)
			g.record(err)
		}
	})
	if err != nil {
		g.wg.Done()
		g.record(err)
	}
}

// Wait blocks until every task has finished and joins their errors.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}

func (g *Group) record(err error) {
	g.mu.Lock()
	g.errs = append(g.errs, err)
	g.mu.Unlock()
}
