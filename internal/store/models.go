package store

import "time"

// Relational models. Naming follows the upstream schema: users are keyed by
// their numeric intra id, and pairwise relations (blocks) live on a
// user-to-user row.

type User struct {
	IntraID        int64  `gorm:"primaryKey;column:intra_id"`
	Name           string `gorm:"column:name"`
	Avatar         string `gorm:"column:avatar"`
	ActivityStatus string `gorm:"column:activity_status;default:OFFLINE"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Membership struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	ChannelName string `gorm:"column:channel_name;uniqueIndex:idx_channel_user"`
	IntraID     int64  `gorm:"column:intra_id;uniqueIndex:idx_channel_user"`
	Role        Role   `gorm:"column:role;default:member"`
	IsBanned    bool   `gorm:"column:is_banned;default:false"`
	IsMuted     bool   `gorm:"column:is_muted;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MessageRecord struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	ChannelName string `gorm:"column:channel_name;index"`
	IntraID     int64  `gorm:"column:intra_id"`
	Text        string `gorm:"column:text"`
	CreatedAt   time.Time
}

func (MessageRecord) TableName() string { return "messages" }

// Relation holds the directed user-to-user state; a block in either
// direction suppresses message delivery both ways.
type Relation struct {
	IntraID      int64 `gorm:"column:intra_id;uniqueIndex:idx_relation_pair"`
	OtherIntraID int64 `gorm:"column:other_intra_id;uniqueIndex:idx_relation_pair"`
	Blocked      bool  `gorm:"column:blocked;default:false"`
	UpdatedAt    time.Time
}
