// Package state хранит снимки окружений, которые симулятор пишет в Redis.
// Горячий путь читает L1 (RAM); Redis опрашивается только при промахе.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/infra"
	"go.uber.org/zap"
)

// ErrNotFound — снимка окружения нет в Redis
var ErrNotFound = errors.New("state: environment not found")

// Client — подмножество *redis.Client, которое нужно хранилищу
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Options struct {
	Retries uint

	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CBMaxFailures uint32

	// OnBreakerChange вызывается при смене состояния предохранителя (для метрик)
	OnBreakerChange func(open bool)
}

type Store struct {
	client  Client
	cb      *gobreaker.CircuitBreaker
	retries uint
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]domain.State
	// Поколения растут на каждом Put/Invalidate/Reset. Get кладет прочитанное в L1,
	// только если поколение не сдвинулось за время чтения из Redis.
	gen   map[string]uint64
	epoch uint64
}

func NewStore(client Client, opts Options, logger *zap.Logger) *Store {
	if opts.Retries == 0 {
		opts.Retries = 1
	}
	logger = logger.Named("state")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "state-store",
		MaxRequests: opts.CBMaxRequests,
		Interval:    opts.CBInterval,
		Timeout:     opts.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > opts.CBMaxFailures
		},
		// Отсутствие снимка — ответ, а не сбой Redis
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if opts.OnBreakerChange != nil {
				opts.OnBreakerChange(to == gobreaker.StateOpen)
			}
		},
	})

	return &Store{
		client:  client,
		cb:      cb,
		retries: opts.Retries,
		logger:  logger,
		cache:   make(map[string]domain.State),
		gen:     make(map[string]uint64),
	}
}

// Get возвращает снимок: сначала L1, затем Redis через предохранитель и ретраи.
func (s *Store) Get(ctx context.Context, envID string) (domain.State, error) {
	s.mu.RLock()
	st, ok := s.cache[envID]
	gen, epoch := s.gen[envID], s.epoch
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		var raw []byte
		err := retry.New(
			retry.Context(ctx),
			retry.Attempts(s.retries),
			retry.Delay(50*time.Millisecond),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool { return !errors.Is(err, ErrNotFound) }),
		).Do(func() error {
			b, err := s.client.Get(ctx, infra.StateKey(envID)).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			raw = b
			return err
		})
		return raw, err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.State{}, fmt.Errorf("%w: %s", ErrNotFound, envID)
		}
		return domain.State{}, fmt.Errorf("state: load %s: %w", envID, err)
	}

	if err := json.Unmarshal(res.([]byte), &st); err != nil {
		return domain.State{}, fmt.Errorf("state: decode %s: %w", envID, err)
	}
	if st.EnvID == "" {
		st.EnvID = envID
	}

	s.mu.Lock()
	if s.gen[envID] == gen && s.epoch == epoch {
		s.cache[envID] = st
	}
	s.mu.Unlock()
	return st, nil
}

// Put записывает снимок и оповещает остальные инстансы.
func (s *Store) Put(ctx context.Context, st domain.State) error {
	if st.EnvID == "" {
		return fmt.Errorf("state: env_id is required")
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", st.EnvID, err)
	}
	if err := s.client.Set(ctx, infra.StateKey(st.EnvID), data, 0).Err(); err != nil {
		return fmt.Errorf("state: save %s: %w", st.EnvID, err)
	}

	s.mu.Lock()
	s.gen[st.EnvID]++
	s.cache[st.EnvID] = st
	s.mu.Unlock()

	if err := s.client.Publish(ctx, infra.RedisChanStateUpdated, st.EnvID).Err(); err != nil {
		// Снимок уже записан, другие инстансы подтянут его при следующем промахе
		s.logger.Warn("state update not published", zap.String("env_id", st.EnvID), zap.Error(err))
	}
	return nil
}

// Invalidate выкидывает снимок из L1
func (s *Store) Invalidate(envID string) {
	s.mu.Lock()
	s.gen[envID]++
	delete(s.cache, envID)
	s.mu.Unlock()
}

// Reset очищает L1 целиком (после переподключения к Pub/Sub)
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.cache = make(map[string]domain.State)
	s.mu.Unlock()
}

// Cached — число снимков в L1
func (s *Store) Cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
