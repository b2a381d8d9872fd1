package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/types"
)

// AnalysisRunRepo stores finished analysis records. The pipeline only ever
// writes; reading back is for operators and offline jobs.
type AnalysisRunRepo interface {
	Record(ctx context.Context, row *types.AnalysisRun) error
	RecentBySource(ctx context.Context, sourceID string, limit int) ([]types.AnalysisRun, error)
}

type analysisRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRunRepo(db *gorm.DB, log *logger.Logger) AnalysisRunRepo {
	return &analysisRunRepo{db: db, log: log.With("repo", "AnalysisRunRepo")}
}

func (r *analysisRunRepo) Record(ctx context.Context, row *types.AnalysisRun) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		r.log.Error("failed to insert analysis run", "source_id", row.SourceID, "error", err.Error())
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

func (r *analysisRunRepo) RecentBySource(ctx context.Context, sourceID string, limit int) ([]types.AnalysisRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []types.AnalysisRun
	err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		r.log.Error("failed to query analysis runs", "source_id", sourceID, "error", err.Error())
		return nil, fmt.Errorf("query analysis runs: %w", err)
	}
	return rows, nil
}
