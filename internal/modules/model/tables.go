package model

// Tables lists every persisted model in migration order.
func Tables() []any {
	return []any{
		&User{},
		&ServiceKey{},
		&Order{},
		&OrderStatusHistory{},
		&Chat{},
		&ChatParticipant{},
		&ChatMessage{},
		&Video{},
		&Story{},
		&EngagementLike{},
		&VideoComment{},
		&Notification{},
	}
}
