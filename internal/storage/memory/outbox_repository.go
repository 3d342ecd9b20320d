package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const defaultOutboxBatch = 100

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	failed     bool
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// OutboxRepository: in-memory хранилище для transactional outbox.
// Отправленные сообщения удаляются сразу, в памяти остаются только pending и failed.
type OutboxRepository struct {
	mu      sync.RWMutex
	records map[string]*outboxRecord
	// pending в порядке добавления.
	pending []*outboxRecord
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{records: make(map[string]*outboxRecord)}
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record := &outboxRecord{
		msg:       msg,
		createdAt: now,
		updatedAt: now,
	}
	r.records[msg.ID] = record
	r.pending = append(r.pending, record)
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке добавления.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	if limit > len(r.pending) {
		limit = len(r.pending)
	}

	result := make([]domain.OutboxMessage, 0, limit)
	for _, rec := range r.pending[:limit] {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и возраст самого старого pending-сообщения.
func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.OutboxStats{PendingCount: len(r.pending)}
	if len(r.pending) > 0 {
		stats.OldestPendingAt = r.pending[0].createdAt
	}
	return stats, nil
}

// MarkSent удаляет опубликованное событие.
func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return domain.ErrOutboxPublish
	}
	r.removePendingLocked(id)
	delete(r.records, id)
	return nil
}

// MarkFailed фиксирует ошибку публикации. Запись остаётся в памяти, но больше не выдаётся в PullPending.
func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	r.removePendingLocked(id)
	record.failed = true
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	return nil
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, len(r.pending))
	for _, rec := range r.pending {
		result = append(result, rec.msg)
	}
	return result
}

// Len возвращает число записей, которые ещё хранятся в памяти.
func (r *OutboxRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// removePendingLocked убирает запись из очереди. Воркер подтверждает сообщения по порядку,
// поэтому обычно совпадение находится в начале.
func (r *OutboxRepository) removePendingLocked(id string) {
	for i, rec := range r.pending {
		if rec.msg.ID != id {
			continue
		}
		copy(r.pending[i:], r.pending[i+1:])
		r.pending[len(r.pending)-1] = nil
		r.pending = r.pending[:len(r.pending)-1]
		return
	}
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
