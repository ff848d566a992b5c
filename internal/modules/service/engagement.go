package service

import (
	"context"
	"errors"
	"strings"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LikeState is the authoritative like state after a mutation.
type LikeState struct {
	Kind       model.SubjectKind
	SubjectID  int64
	UserID     int64
	IsLiked    bool
	LikesCount int64
}

type EngagementService interface {
	// SetLike makes the like state equal to liked. Repeating it is a no-op.
	SetLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64, liked bool) (*LikeState, error)
	ToggleLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64) (*LikeState, error)
	RecordView(ctx context.Context, kind model.SubjectKind, subjectID int64) (int64, error)
	AddComment(ctx context.Context, in AddCommentInput) (*model.VideoComment, int64, error)
	GetVideo(ctx context.Context, id int64) (*model.Video, error)
}

type AddCommentInput struct {
	VideoID  int64
	UserID   int64
	Content  string
	ParentID *int64
}

type engagementService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewEngagementService(db *gorm.DB, log *zap.Logger) EngagementService {
	return &engagementService{db: db, log: log}
}

func (s *engagementService) SetLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64, liked bool) (*LikeState, error) {
	return s.mutateLike(ctx, kind, subjectID, userID, func(bool) bool { return liked })
}

func (s *engagementService) ToggleLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64) (*LikeState, error) {
	return s.mutateLike(ctx, kind, subjectID, userID, func(current bool) bool { return !current })
}

// mutateLike moves the like row to want(current) and keeps likes_count in
// step with the rows actually inserted or deleted.
func (s *engagementService) mutateLike(ctx context.Context, kind model.SubjectKind, subjectID, userID int64, want func(current bool) bool) (*LikeState, error) {
	if !kind.Valid() {
		return nil, newErr(ErrValidation, "unknown subject kind")
	}

	state := &LikeState{Kind: kind, SubjectID: subjectID, UserID: userID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := repo.NewEngagementRepo(tx)

		exists, err := r.SubjectExists(ctx, kind, subjectID)
		if err != nil {
			return err
		}
		if !exists {
			return newErr(ErrNotFound, string(kind)+" not found")
		}

		current, err := r.HasLike(ctx, kind, subjectID, userID)
		if err != nil {
			return err
		}
		target := want(current)

		switch {
		case target && !current:
			added, err := r.AddLike(ctx, kind, subjectID, userID)
			if err != nil {
				return err
			}
			if added {
				if err := r.IncrementLikes(ctx, kind, subjectID); err != nil {
					return err
				}
			}
		case !target && current:
			removed, err := r.RemoveLike(ctx, kind, subjectID, userID)
			if err != nil {
				return err
			}
			if removed {
				if err := r.DecrementLikes(ctx, kind, subjectID); err != nil {
					return err
				}
			}
		}

		state.IsLiked = target
		state.LikesCount, err = r.LikesCount(ctx, kind, subjectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *engagementService) RecordView(ctx context.Context, kind model.SubjectKind, subjectID int64) (int64, error) {
	if !kind.Valid() {
		return 0, newErr(ErrValidation, "unknown subject kind")
	}
	views, err := repo.NewEngagementRepo(s.db).IncrementViews(ctx, kind, subjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, newErr(ErrNotFound, string(kind)+" not found")
		}
		return 0, err
	}
	return views, nil
}

func (s *engagementService) AddComment(ctx context.Context, in AddCommentInput) (*model.VideoComment, int64, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, 0, newErr(ErrValidation, "comment is empty")
	}

	c := &model.VideoComment{VideoID: in.VideoID, UserID: in.UserID, Content: content, ParentID: in.ParentID}
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := repo.NewEngagementRepo(tx)
		exists, err := r.SubjectExists(ctx, model.SubjectVideo, in.VideoID)
		if err != nil {
			return err
		}
		if !exists {
			return newErr(ErrNotFound, "video not found")
		}
		count, err = r.CreateComment(ctx, c)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return c, count, nil
}

func (s *engagementService) GetVideo(ctx context.Context, id int64) (*model.Video, error) {
	v, err := repo.NewEngagementRepo(s.db).GetVideo(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newErr(ErrNotFound, "video not found")
		}
		return nil, err
	}
	return v, nil
}
