package store

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chat.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveMessageAssignsSequencePerRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m1, err := s.SaveMessage(ctx, "r1", "u1", "user", "first", "text")
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	m2, err := s.SaveMessage(ctx, "r1", "u1", "user", "second", "text")
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	other, err := s.SaveMessage(ctx, "r2", "u2", "user", "elsewhere", "text")
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	if m1.Sequence != 1 || m2.Sequence != 2 {
		t.Errorf("sequences = %d, %d; want 1, 2", m1.Sequence, m2.Sequence)
	}
	if other.Sequence != 1 {
		t.Errorf("other room sequence = %d; want 1", other.Sequence)
	}
	if m1.ID == "" || m1.ID == m2.ID {
		t.Error("message ids must be unique and assigned")
	}
}

func TestHasAccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddMember(ctx, "r1", "u1"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	ok, err := s.HasAccess(ctx, "u1", "r1")
	if err != nil || !ok {
		t.Errorf("HasAccess(u1, r1) = %v, %v; want member", ok, err)
	}
	ok, err = s.HasAccess(ctx, "u2", "r1")
	if err != nil || ok {
		t.Errorf("HasAccess(u2, r1) = %v, %v; want non-member", ok, err)
	}
	ok, err = s.HasAccess(ctx, "u1", "r2")
	if err != nil || ok {
		t.Errorf("HasAccess(u1, r2) = %v, %v; want non-member", ok, err)
	}
}

func TestRecentMessagesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c"} {
		if _, err := s.SaveMessage(ctx, "r1", "u1", "user", content, "text"); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	msgs, err := s.RecentMessages(ctx, "r1", 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "c" || msgs[1].Content != "b" {
		t.Errorf("order = %q, %q; want c, b", msgs[0].Content, msgs[1].Content)
	}
}
