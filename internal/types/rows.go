package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AnalysisRun is the persisted form of a finished AnalysisRecord. The
// pipeline only ever writes these rows; it never reads them back.
type AnalysisRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceID     string         `gorm:"column:source_id;index" json:"source_id"`
	DocumentType string         `gorm:"column:document_type" json:"document_type"`
	Complexity   string         `gorm:"column:complexity" json:"complexity"`
	OverallRisk  string         `gorm:"column:overall_risk;index" json:"overall_risk"`
	RiskScore    float64        `gorm:"column:risk_score" json:"risk_score"`
	Record       datatypes.JSON `gorm:"type:jsonb;column:record" json:"record"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (AnalysisRun) TableName() string {
	return "analysis_run"
}

// AICallLog is one row per backend call the orchestrator issued, success
// or not. It is the audit trail for provider spend and failure modes.
type AICallLog struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Fingerprint string    `gorm:"column:fingerprint;index" json:"fingerprint"`
	Provider    string    `gorm:"column:provider;not null" json:"provider"`
	Model       string    `gorm:"column:model" json:"model"`
	Success     bool      `gorm:"column:success;not null" json:"success"`
	ErrorKind   string    `gorm:"column:error_kind" json:"error_kind"`
	Error       string    `gorm:"column:error" json:"error"`
	LatencyMS   int64     `gorm:"column:latency_ms" json:"latency_ms"`
	InputChars  int       `gorm:"column:input_chars" json:"input_chars"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (AICallLog) TableName() string {
	return "ai_call_log"
}
