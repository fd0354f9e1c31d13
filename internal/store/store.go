package store

import (
	"context"
	"errors"

	"github.com/seantiz/sqlworker/internal/model"
)

// ErrInvalidTransition is returned when an operation status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// OperationStats holds aggregate execution statistics.
type OperationStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByKind   map[string]int `json:"count_by_kind"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for the operation journal.
type Store interface {
	CreateOperation(ctx context.Context, op *model.OperationRecord) error
	GetOperation(ctx context.Context, id string) (*model.OperationRecord, error)
	ListOperations(ctx context.Context, limit, offset int) ([]*model.OperationRecord, int, error)
	UpdateOperationStatus(ctx context.Context, id, status string) error
	UpdateOperation(ctx context.Context, op *model.OperationRecord) error
	GetOperationStats(ctx context.Context) (*OperationStats, error)
	Close() error
}
