package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jovemegidio/sistemaerp-suporte/internal/domain"
	"github.com/jovemegidio/sistemaerp-suporte/internal/persistence"
)

const (
	knowledgeCacheKey = "suporte:knowledge:active"
	knowledgeCacheTTL = 5 * time.Minute
)

// KnowledgeRepository manages the knowledge base consulted by triage.
type KnowledgeRepository interface {
	Create(ctx context.Context, entry *domain.KnowledgeEntry) error
	ListAll(ctx context.Context) ([]domain.KnowledgeEntry, error)
	Search(ctx context.Context, query string) ([]domain.KnowledgeEntry, error)
}

type knowledgeRepository struct {
	db     *sqlx.DB
	cache  *persistence.Redis
	logger *zap.Logger
}

// NewKnowledgeRepository builds repository. The Redis cache is optional;
// a nil cache means every read hits MySQL.
func NewKnowledgeRepository(db *sqlx.DB, cache *persistence.Redis, logger *zap.Logger) KnowledgeRepository {
	return &knowledgeRepository{db: db, cache: cache, logger: logger}
}

func (r *knowledgeRepository) Create(ctx context.Context, entry *domain.KnowledgeEntry) error {
	const query = `
        INSERT INTO knowledge_base (question, answer, keywords, category, active)
        VALUES (:question, :answer, :keywords, :category, :active)`
	res, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	r.invalidateCache(ctx)
	const reload = `
        SELECT id, question, answer, keywords, category, active, created_at
        FROM knowledge_base WHERE id=?`
	return r.db.GetContext(ctx, entry, reload, id)
}

func (r *knowledgeRepository) ListAll(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	const query = `
        SELECT id, question, answer, keywords, category, active, created_at
        FROM knowledge_base ORDER BY id ASC`
	var entries []domain.KnowledgeEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, err
	}
	return entries, nil
}

// Search returns every active entry sharing at least one word of three or
// more characters with the query. Entries come back in store order; the
// caller takes the first one.
func (r *knowledgeRepository) Search(ctx context.Context, query string) ([]domain.KnowledgeEntry, error) {
	words := domain.QueryWords(query)
	if len(words) == 0 {
		return []domain.KnowledgeEntry{}, nil
	}

	entries, err := r.listActive(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]domain.KnowledgeEntry, 0)
	for _, entry := range entries {
		if entry.MatchesQuery(words) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (r *knowledgeRepository) listActive(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	if cached, ok := r.cacheGet(ctx); ok {
		return cached, nil
	}

	const query = `
        SELECT id, question, answer, keywords, category, active, created_at
        FROM knowledge_base WHERE active=1 ORDER BY id ASC`
	var entries []domain.KnowledgeEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, err
	}

	r.cacheSet(ctx, entries)
	return entries, nil
}

func (r *knowledgeRepository) cacheGet(ctx context.Context) ([]domain.KnowledgeEntry, bool) {
	if r.cache == nil || r.cache.Client == nil {
		return nil, false
	}
	raw, err := r.cache.Client.Get(ctx, knowledgeCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []domain.KnowledgeEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		r.logger.Warn("discarding corrupt knowledge cache", zap.Error(err))
		return nil, false
	}
	return entries, true
}

func (r *knowledgeRepository) cacheSet(ctx context.Context, entries []domain.KnowledgeEntry) {
	if r.cache == nil || r.cache.Client == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := r.cache.Client.Set(ctx, knowledgeCacheKey, raw, knowledgeCacheTTL).Err(); err != nil {
		r.logger.Warn("unable to cache knowledge entries", zap.Error(err))
	}
}

func (r *knowledgeRepository) invalidateCache(ctx context.Context) {
	if r.cache == nil || r.cache.Client == nil {
		return
	}
	if err := r.cache.Client.Del(ctx, knowledgeCacheKey).Err(); err != nil {
		r.logger.Warn("unable to invalidate knowledge cache", zap.Error(err))
	}
}
