package repo

import (
	"context"
	"fmt"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EngagementRepo interface {
	SubjectExists(ctx context.Context, kind model.SubjectKind, id int64) (bool, error)
	GetVideo(ctx context.Context, id int64) (*model.Video, error)
	HasLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64) (bool, error)
	// AddLike inserts the like row and reports whether it was new.
	AddLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64) (bool, error)
	// RemoveLike deletes the like row and reports whether one existed.
	RemoveLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64) (bool, error)
	IncrementLikes(ctx context.Context, kind model.SubjectKind, id int64) error
	// DecrementLikes never takes the counter below zero.
	DecrementLikes(ctx context.Context, kind model.SubjectKind, id int64) error
	LikesCount(ctx context.Context, kind model.SubjectKind, id int64) (int64, error)
	IncrementViews(ctx context.Context, kind model.SubjectKind, id int64) (int64, error)
	CreateComment(ctx context.Context, c *model.VideoComment) (int64, error)
}

type engagementRepo struct{ db *gorm.DB }

func NewEngagementRepo(db *gorm.DB) EngagementRepo {
	return &engagementRepo{db: db}
}

func subjectModel(kind model.SubjectKind) (any, error) {
	switch kind {
	case model.SubjectVideo:
		return &model.Video{}, nil
	case model.SubjectStory:
		return &model.Story{}, nil
	}
	return nil, fmt.Errorf("unknown subject kind %q", kind)
}

func (r *engagementRepo) subject(ctx context.Context, kind model.SubjectKind, id int64) (*gorm.DB, error) {
	m, err := subjectModel(kind)
	if err != nil {
		return nil, err
	}
	return r.db.WithContext(ctx).Model(m).Where("id = ?", id), nil
}

func (r *engagementRepo) SubjectExists(ctx context.Context, kind model.SubjectKind, id int64) (bool, error) {
	q, err := r.subject(ctx, kind, id)
	if err != nil {
		return false, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *engagementRepo) GetVideo(ctx context.Context, id int64) (*model.Video, error) {
	var v model.Video
	if err := r.db.WithContext(ctx).First(&v, id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *engagementRepo) HasLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.EngagementLike{}).
		Where("subject_kind = ? AND subject_id = ? AND user_id = ?", kind, subjectID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *engagementRepo) AddLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.EngagementLike{SubjectKind: kind, SubjectID: subjectID, UserID: userID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *engagementRepo) RemoveLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("subject_kind = ? AND subject_id = ? AND user_id = ?", kind, subjectID, userID).
		Delete(&model.EngagementLike{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *engagementRepo) IncrementLikes(ctx context.Context, kind model.SubjectKind, id int64) error {
	q, err := r.subject(ctx, kind, id)
	if err != nil {
		return err
	}
	return q.UpdateColumn("likes_count", gorm.Expr("likes_count + 1")).Error
}

func (r *engagementRepo) DecrementLikes(ctx context.Context, kind model.SubjectKind, id int64) error {
	q, err := r.subject(ctx, kind, id)
	if err != nil {
		return err
	}
	return q.Where("likes_count > 0").UpdateColumn("likes_count", gorm.Expr("likes_count - 1")).Error
}

func (r *engagementRepo) LikesCount(ctx context.Context, kind model.SubjectKind, id int64) (int64, error) {
	q, err := r.subject(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Select("likes_count").Scan(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *engagementRepo) IncrementViews(ctx context.Context, kind model.SubjectKind, id int64) (int64, error) {
	q, err := r.subject(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	res := q.UpdateColumn("views_count", gorm.Expr("views_count + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	read, err := r.subject(ctx, kind, id)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := read.Select("views_count").Scan(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *engagementRepo) CreateComment(ctx context.Context, c *model.VideoComment) (int64, error) {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return 0, err
	}
	q, err := r.subject(ctx, model.SubjectVideo, c.VideoID)
	if err != nil {
		return 0, err
	}
	if err := q.UpdateColumn("comments_count", gorm.Expr("comments_count + 1")).Error; err != nil {
		return 0, err
	}

	read, err := r.subject(ctx, model.SubjectVideo, c.VideoID)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := read.Select("comments_count").Scan(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
