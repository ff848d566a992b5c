package model

import "time"

// SubjectKind names the kind of content a like or view applies to.
type SubjectKind string

const (
	SubjectVideo SubjectKind = "video"
	SubjectStory SubjectKind = "story"
)

func (k SubjectKind) Valid() bool { return k == SubjectVideo || k == SubjectStory }

type Video struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID      int64  `gorm:"not null;index:ix_videos_author_id" json:"author_id"`
	Title         string `gorm:"type:text;not null" json:"title"`
	Category      string `gorm:"type:text" json:"category,omitempty"`
	LikesCount    int64  `gorm:"not null;default:0;check:likes_count >= 0" json:"likes_count"`
	ViewsCount    int64  `gorm:"not null;default:0;check:views_count >= 0" json:"views_count"`
	CommentsCount int64  `gorm:"not null;default:0;check:comments_count >= 0" json:"comments_count"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Video) TableName() string { return "videos" }

type Story struct {
	ID         int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID   int64 `gorm:"not null;index:ix_stories_author_id" json:"author_id"`
	LikesCount int64 `gorm:"not null;default:0;check:likes_count >= 0" json:"likes_count"`
	ViewsCount int64 `gorm:"not null;default:0;check:views_count >= 0" json:"views_count"`

	CreatedAt time.Time  `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (Story) TableName() string { return "stories" }

// EngagementLike records that a user likes a video or a story.
type EngagementLike struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	SubjectKind SubjectKind `gorm:"type:text;not null;uniqueIndex:uq_engagement_likes_subject_user,priority:1" json:"subject_kind"`
	SubjectID   int64       `gorm:"not null;uniqueIndex:uq_engagement_likes_subject_user,priority:2" json:"subject_id"`
	UserID      int64       `gorm:"not null;uniqueIndex:uq_engagement_likes_subject_user,priority:3" json:"user_id"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (EngagementLike) TableName() string { return "engagement_likes" }

type VideoComment struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	VideoID  int64  `gorm:"not null;index:ix_video_comments_video_id" json:"videoId"`
	UserID   int64  `gorm:"not null" json:"userId"`
	Content  string `gorm:"type:text;not null" json:"content"`
	ParentID *int64 `json:"parentId,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"createdAt"`

	Video *Video `gorm:"foreignKey:VideoID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
}

func (VideoComment) TableName() string { return "video_comments" }
