package audit

/*
Journal — асинхронный журнал вердиктов гейта легальности.

- Log не блокирует горячий путь: вердикт кладется в буферизованный канал,
  при переполнении событие сбрасывается в zap (load shedding).
- Воркер копит пачку и пишет её в Storage по таймеру или по достижении BatchSize.
- Stop закрывает канал и ждет финальный flush (drain), вердикты не теряются при остановке.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/gridrules/internal/domain"
	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются вердикты
type Storage interface {
	WriteBatch(ctx context.Context, verdicts []domain.Verdict) error
}

// Auditor — то, что нужно горячему пути
type Auditor interface {
	Log(v domain.Verdict)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type Journal struct {
	ch     chan domain.Verdict
	repo   Storage
	logger *zap.Logger
	opts   Options
	wg     sync.WaitGroup

	isClosed atomic.Bool
	dropped  atomic.Int64
}

func NewJournal(repo Storage, opts Options, logger *zap.Logger) *Journal {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Journal{
		ch:     make(chan domain.Verdict, opts.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "journal")),
		opts:   opts,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	if !j.isClosed.CompareAndSwap(false, true) {
		return
	}

	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully", zap.Int64("dropped", j.dropped.Load()))
}

func (j *Journal) Log(v domain.Verdict) {
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}

	if j.isClosed.Load() {
		j.dropped.Add(1)
		j.logger.Warn("verdict dropped: journal is stopping", zap.String("id", v.ID))
		return
	}

	defer func() {
		// Stop мог закрыть канал между проверкой флага и отправкой
		if recover() != nil {
			j.dropped.Add(1)
		}
	}()

	select {
	case j.ch <- v:
	default:
		j.dropped.Add(1)
		j.logger.Error("journal_buffer_overflow",
			zap.String("env_id", v.EnvID),
			zap.String("trace_id", v.TraceID),
			zap.Bool("legal", v.Legal),
		)
	}
}

// Len — текущая заполненность буфера (backpressure)
func (j *Journal) Len() int { return len(j.ch) }

// Dropped — сколько вердиктов не попало в буфер
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]domain.Verdict, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть отменен
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case v, ok := <-j.ch:
			if !ok {
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, v)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// NopStorage используется, когда БД не настроена: вердикты только логируются.
type NopStorage struct {
	Logger *zap.Logger
}

func (s NopStorage) WriteBatch(_ context.Context, verdicts []domain.Verdict) error {
	if s.Logger != nil {
		s.Logger.Debug("journal batch discarded", zap.Int("size", len(verdicts)))
	}
	return nil
}
