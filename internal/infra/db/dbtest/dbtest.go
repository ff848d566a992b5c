// Package dbtest provides a migrated in-memory store for package tests.
package dbtest

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/kazak5205/mebelplace-sub009/internal/infra/db"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	seq     atomic.Int64
	nonWord = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// New returns a fresh shared-cache in-memory sqlite database with every
// model migrated. Each call gets its own database name.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	name := nonWord.ReplaceAllString(t.Name(), "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, seq.Add(1))

	d, err := db.OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(model.Tables()...))

	t.Cleanup(func() {
		if sqlDB, err := d.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return d
}

// Seed inserts rows and fails the test on error.
func Seed(t testing.TB, d *gorm.DB, rows ...any) {
	t.Helper()
	for _, r := range rows {
		require.NoError(t, d.Create(r).Error)
	}
}
