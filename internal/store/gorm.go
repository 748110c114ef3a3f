package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds database configuration.
type Config struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	FilePath        string `mapstructure:"filepath"` // sqlite only
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
}

// Message is the chat message row.
type Message struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	RoomID         string    `gorm:"type:uuid;index:idx_messages_room_seq,priority:1;not null"`
	SenderID       string    `gorm:"type:uuid;not null"`
	SenderType     string    `gorm:"size:16;not null"`
	Content        string    `gorm:"type:text;not null"`
	ContentType    string    `gorm:"size:16;not null;default:text"`
	SequenceNumber int64     `gorm:"index:idx_messages_room_seq,priority:2;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (Message) TableName() string { return "messages" }

// RoomMember is one user's membership in a chat room.
type RoomMember struct {
	RoomID    string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (RoomMember) TableName() string { return "room_members" }

// GormStore implements Store over a relational database.
type GormStore struct {
	db *gorm.DB
}

// New opens the configured database and migrates the chat tables.
func New(cfg *Config) (*GormStore, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		)
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})

	case "sqlite":
		dialector = sqlite.Open(cfg.FilePath)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	if err := db.AutoMigrate(&Message{}, &RoomMember{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat tables: %w", err)
	}

	return &GormStore{db: db}, nil
}

// NewWithDB wraps an already-open connection. Used by tests.
func NewWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Message{}, &RoomMember{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveMessage(ctx context.Context, roomID, senderID, senderType, content, contentType string) (*MessageRecord, error) {
	msg := &Message{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		SenderID:    senderID,
		SenderType:  senderType,
		Content:     content,
		ContentType: contentType,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&Message{}).
			Where("room_id = ?", roomID).
			Select("COALESCE(MAX(sequence_number), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		msg.SequenceNumber = maxSeq + 1
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return recordOf(msg), nil
}

func (s *GormStore) HasAccess(ctx context.Context, userID, roomID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check room membership: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []Message
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("sequence_number DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	records := make([]MessageRecord, 0, len(rows))
	for i := range rows {
		records = append(records, *recordOf(&rows[i]))
	}
	return records, nil
}

// AddMember inserts a room membership. Membership management proper belongs
// to the room service; this exists for provisioning and tests.
func (s *GormStore) AddMember(ctx context.Context, roomID, userID string) error {
	member := &RoomMember{RoomID: roomID, UserID: userID}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("failed to add room member: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordOf(m *Message) *MessageRecord {
	return &MessageRecord{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		SenderType:  m.SenderType,
		Content:     m.Content,
		ContentType: m.ContentType,
		Sequence:    m.SequenceNumber,
		CreatedAt:   m.CreatedAt,
	}
}
