package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"inventario-backend/internal/database"
	"inventario-backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

func TestImport_NormalisesRows(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, 0)
	ctx := context.Background()

	inserted, skipped, err := repo.Import(ctx, 1, []ImportItem{
		{ProductCode: " P1 ", Description: "Tuerca", Quantity: 50, Area: strPtr("A"), Location: strPtr(" ")},
		{ProductCode: "P2"},
		{ProductCode: "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 1, skipped)

	var rows []models.MasterProduct
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "P1", rows[0].ProductCode)
	assert.Equal(t, "A", *rows[0].Area)
	assert.Nil(t, rows[0].Location)
	assert.Equal(t, DefaultDescription, rows[1].Description)
	assert.Equal(t, "UN", rows[1].Unit)
}

func TestLookupProducts_ChunksAndScopesByTenant(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, 2)
	ctx := context.Background()

	var items []ImportItem
	for i := 0; i < 5; i++ {
		items = append(items, ImportItem{ProductCode: fmt.Sprintf("P%d", i), Quantity: i * 10})
	}
	_, _, err := repo.Import(ctx, 1, items)
	require.NoError(t, err)
	_, _, err = repo.Import(ctx, 2, []ImportItem{{ProductCode: "P0", Quantity: 999}})
	require.NoError(t, err)

	var queries int
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("count_queries", func(*gorm.DB) { queries++ }))

	got, err := repo.LookupProducts(ctx, 1, []string{"P0", "P1", "P1", "P3", "P4", "missing", ""})
	require.NoError(t, err)

	assert.Equal(t, 3, queries, "five distinct codes in chunks of two")
	assert.Len(t, got, 4)
	assert.Equal(t, 0, got["P0"].Quantity)
	assert.Equal(t, 30, got["P3"].Quantity)
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestLookupProducts_DuplicateCatalogRowsNewestWins(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, 0)
	ctx := context.Background()

	_, _, err := repo.Import(ctx, 1, []ImportItem{{ProductCode: "P1", Quantity: 5}})
	require.NoError(t, err)
	_, _, err = repo.Import(ctx, 1, []ImportItem{{ProductCode: "P1", Quantity: 8}})
	require.NoError(t, err)

	got, err := repo.LookupProducts(ctx, 1, []string{"P1"})
	require.NoError(t, err)
	assert.Equal(t, 8, got["P1"].Quantity)
}

func TestListPageAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db, 0)
	ctx := context.Background()

	var items []ImportItem
	for i := 0; i < 5; i++ {
		items = append(items, ImportItem{ProductCode: fmt.Sprintf("P%d", i)})
	}
	_, _, err := repo.Import(ctx, 1, items)
	require.NoError(t, err)

	rows, total, err := repo.ListPage(ctx, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, rows, 2)
	assert.Equal(t, "P2", rows[0].ProductCode)
	assert.Equal(t, "P3", rows[1].ProductCode)

	rows, _, err = repo.ListPage(ctx, 1, 3, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	deleted, err := repo.DeleteAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	_, total, err = repo.ListPage(ctx, 1, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, total)
}
