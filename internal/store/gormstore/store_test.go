package gormstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	"github.com/mohit-ambani/auditflow-sub000/internal/store/storetest"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s := New(db, logger.NewNopLogger())
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestAppendAlias_ConcurrentSameAlias(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveCatalogEntry(ctx, &models.CatalogEntry{
		ID: "c1", OrgID: "org-1", Code: "CEM", Name: "Cement", Active: true,
	}))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AppendAlias(ctx, "org-1", "c1", "Grey Cement Bag")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, added)
	entry, err := s.GetCatalogEntry(ctx, "org-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Grey Cement Bag"}, entry.Aliases)
}

func TestSaveCatalogEntry_ReplacesAliases(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entry := &models.CatalogEntry{ID: "c1", OrgID: "org-1", Code: "CEM", Name: "Cement",
		Aliases: []string{"OPC", "Grey Cement"}, Active: true}
	require.NoError(t, s.SaveCatalogEntry(ctx, entry))

	entry.Aliases = []string{"OPC"}
	entry.Active = false
	require.NoError(t, s.SaveCatalogEntry(ctx, entry))

	got, err := s.GetCatalogEntry(ctx, "org-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"OPC"}, got.Aliases)
	assert.False(t, got.Active)
}

func TestSaveResult_KeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	res := &models.StoredResult{Key: "k1", OrgID: "org-1", Kind: models.ResultDiscountEvaluation, Class: "CORRECT"}
	require.NoError(t, s.SaveResult(ctx, res))

	clock = clock.Add(2 * time.Hour)
	res.Class = "UNDER_DISCOUNTED"
	require.NoError(t, s.SaveResult(ctx, res))

	got, err := s.GetResult(ctx, "org-1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "UNDER_DISCOUNTED", got.Class)
	assert.True(t, got.CreatedAt.Equal(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)), "created %s", got.CreatedAt)
	assert.True(t, got.UpdatedAt.Equal(clock), "updated %s", got.UpdatedAt)
	assert.JSONEq(t, `{}`, string(got.Payload))
}

func TestOpenSQLite_File(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/auditflow.db"

	s, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveInvoice(ctx, storetest.Invoice("org-1", "i1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "100")))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()
	inv, err := reopened.GetInvoice(ctx, "org-1", "i1")
	require.NoError(t, err)
	assert.Equal(t, "INV-i1", inv.Number)
}
