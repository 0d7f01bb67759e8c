package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore is the relational implementation of Store.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ Store = (*GormStore)(nil)

// Open connects to the database and runs schema migration.
func Open(dsn string, logger *slog.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &Membership{}, &MessageRecord{}, &Relation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return NewGormStore(db, logger), nil
}

func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.With(slog.String("component", "store")),
	}
}

func (s *GormStore) Member(ctx context.Context, channelName string, userID int64) (Member, error) {
	var row Membership
	err := s.db.WithContext(ctx).
		Where("channel_name = ? AND intra_id = ?", channelName, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, ErrNoMembership
	}
	if err != nil {
		return Member{}, err
	}

	var user User
	err = s.db.WithContext(ctx).Where("intra_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, ErrUserNotFound
	}
	if err != nil {
		return Member{}, err
	}

	return Member{
		UserID:   userID,
		Name:     user.Name,
		Avatar:   user.Avatar,
		Role:     row.Role,
		IsBanned: row.IsBanned,
		IsMuted:  row.IsMuted,
	}, nil
}

// CanModerate: the actor must hold owner or admin role in the channel and
// the target must be a member that is not the owner.
func (s *GormStore) CanModerate(ctx context.Context, channelName string, actorID, targetID int64) (bool, error) {
	if actorID == targetID {
		return false, nil
	}
	actor, err := s.Member(ctx, channelName, actorID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			return false, nil
		}
		return false, err
	}
	target, err := s.Member(ctx, channelName, targetID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			return false, nil
		}
		return false, err
	}
	if actor.Role != RoleOwner && actor.Role != RoleAdmin {
		return false, nil
	}
	return target.Role != RoleOwner, nil
}

func (s *GormStore) SaveMessage(ctx context.Context, channelName string, userID int64, text string) (Message, error) {
	record := MessageRecord{
		ChannelName: channelName,
		IntraID:     userID,
		Text:        text,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return Message{}, fmt.Errorf("failed to persist message: %w", err)
	}

	var user User
	if err := s.db.WithContext(ctx).Where("intra_id = ?", userID).First(&user).Error; err != nil {
		return Message{}, err
	}

	return Message{
		ID:          record.ID,
		ChannelName: channelName,
		UserID:      userID,
		Name:        user.Name,
		Text:        record.Text,
		SentAt:      record.CreatedAt,
	}, nil
}

func (s *GormStore) IsBlockedEither(ctx context.Context, a, b int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Relation{}).
		Where("blocked = ?", true).
		Where("(intra_id = ? AND other_intra_id = ?) OR (intra_id = ? AND other_intra_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) BanMember(ctx context.Context, channelName string, userID int64) error {
	return s.setMembershipFlag(ctx, channelName, userID, "is_banned")
}

func (s *GormStore) MuteMember(ctx context.Context, channelName string, userID int64) error {
	return s.setMembershipFlag(ctx, channelName, userID, "is_muted")
}

func (s *GormStore) setMembershipFlag(ctx context.Context, channelName string, userID int64, column string) error {
	result := s.db.WithContext(ctx).Model(&Membership{}).
		Where("channel_name = ? AND intra_id = ?", channelName, userID).
		Update(column, true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoMembership
	}
	return nil
}

func (s *GormStore) SetActivityStatus(ctx context.Context, userID int64, online bool) error {
	status := "OFFLINE"
	if online {
		status = "ONLINE"
	}
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("intra_id = ?", userID).
		Update("activity_status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
