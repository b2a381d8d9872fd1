package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
)

// AICallLogRepo is the audit trail of every backend model call. Write-only
// from the service's perspective; reads happen through ops tooling.
type AICallLogRepo interface {
	Record(ctx context.Context, row *types.AICallLog) error
}

type aiCallLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAICallLogRepo(db *gorm.DB, log *logger.Logger) AICallLogRepo {
	return &aiCallLogRepo{db: db, log: log.With("repo", "AICallLogRepo")}
}

func (r *aiCallLogRepo) Record(ctx context.Context, row *types.AICallLog) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		r.log.Error("failed to insert ai call log", "provider", row.Provider, "error", err.Error())
		return fmt.Errorf("insert ai call log: %w", err)
	}
	return nil
}
