package repo

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type txRow struct {
	ID    uint `gorm:"primaryKey"`
	Value string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&txRow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

func TestWithTxCommits(t *testing.T) {
	db := newTestDB(t)
	runner := NewTx(db)

	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&txRow{Value: "kept"}).Error
	})
	if err != nil {
		t.Fatalf("expected commit, got %v", err)
	}

	var count int64
	if err := db.Model(&txRow{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after commit, got %d", count)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	runner := NewTx(db)

	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&txRow{Value: "discarded"}).Error; err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatal("expected error from fn")
	}

	var count int64
	if err := db.Model(&txRow{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}
