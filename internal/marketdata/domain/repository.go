package domain

import "context"

// RateRecordRepository 归一化观测仓储
type RateRecordRepository interface {
	Save(ctx context.Context, record *RateRecord) error
	Latest(ctx context.Context, protocol Protocol, asset string) (*RateRecord, error)
	ListRecent(ctx context.Context, protocol Protocol, asset string, limit int) ([]*RateRecord, error)
}
