package repo

import (
	"context"
	"time"

	"github.com/kazak5205/mebelplace-sub009/internal/infra/db"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"gorm.io/gorm"
)

type OrderRepo interface {
	Create(ctx context.Context, o *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	// GetForUpdate loads a live order and row-locks it where the dialect allows.
	GetForUpdate(ctx context.Context, id int64) (*model.Order, error)
	// CompareAndSetStatus moves the order from -> to and reports whether a row changed.
	CompareAndSetStatus(ctx context.Context, id int64, from, to model.OrderStatus) (bool, error)
	AppendHistory(ctx context.Context, h *model.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID int64) ([]HistoryEntry, error)
}

// HistoryEntry is a status history row joined with the actor's username.
type HistoryEntry struct {
	ID                int64             `json:"id"`
	OrderID           int64             `json:"order_id"`
	ChangedBy         int64             `json:"changed_by"`
	ChangedByUsername string            `json:"changed_by_username"`
	OldStatus         model.OrderStatus `json:"old_status"`
	NewStatus         model.OrderStatus `json:"new_status"`
	Reason            *string           `json:"reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, o *model.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var o model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id int64) (*model.Order, error) {
	var o model.Order
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) CompareAndSetStatus(ctx context.Context, id int64, from, to model.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepo) AppendHistory(ctx context.Context, h *model.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *orderRepo) ListHistory(ctx context.Context, orderID int64) ([]HistoryEntry, error) {
	var items []HistoryEntry
	err := r.db.WithContext(ctx).
		Table("order_status_history AS h").
		Select("h.id, h.order_id, h.changed_by, COALESCE(u.username, '') AS changed_by_username, h.old_status, h.new_status, h.reason, h.created_at").
		Joins("LEFT JOIN users AS u ON u.id = h.changed_by").
		Where("h.order_id = ?", orderID).
		Order("h.created_at ASC, h.id ASC").
		Scan(&items).Error
	return items, err
}
