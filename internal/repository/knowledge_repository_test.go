package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var knowledgeColumnList = []string{
	"id", "question", "answer", "keywords", "category", "active", "created_at",
}

func TestKnowledgeRepositorySearchMatchesByWord(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewKnowledgeRepository(db, nil, zap.NewNop())

	created := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(knowledgeColumnList).
		AddRow(int64(1), "Como recuperar minha senha?", "Clique em esqueci minha senha.", "senha,login,acesso", nil, true, created).
		AddRow(int64(2), "Como emitir boleto?", "Acesse o módulo Financeiro.", "boleto,fatura", nil, true, created)
	mock.ExpectQuery("SELECT (.+) FROM knowledge_base WHERE active=1").
		WillReturnRows(rows)

	entries, err := repo.Search(context.Background(), "esqueci minha senha")
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKnowledgeRepositorySearchShortWordsSkipStore(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewKnowledgeRepository(db, nil, zap.NewNop())

	// No expectations set: a query with no usable words must not hit MySQL.
	entries, err := repo.Search(context.Background(), "oi")
	require.NoError(t, err)

	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKnowledgeRepositoryListAll(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewKnowledgeRepository(db, nil, zap.NewNop())

	created := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(knowledgeColumnList).
		AddRow(int64(1), "Pergunta?", "Resposta.", "palavra", nil, false, created)
	mock.ExpectQuery("SELECT (.+) FROM knowledge_base ORDER BY id ASC").
		WillReturnRows(rows)

	entries, err := repo.ListAll(context.Background())
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.False(t, entries[0].Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}
