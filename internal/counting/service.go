package counting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"inventario-backend/internal/config"
	"inventario-backend/internal/models"
)

const (
	insertBatchSize     = 1000
	DefaultHistoryLimit = 100
)

var (
	ErrNoItems          = errors.New("no items to ingest")
	ErrEmptyProductCode = errors.New("product_code is required")
	ErrMissingBatch     = errors.New("control_batch_id is required")
	ErrMissingTenant    = errors.New("tenant_id is required")
)

// Refresher rebuilds the derived statistics of a user.
type Refresher interface {
	Refresh(ctx context.Context, userID uint, role models.UserRole, at time.Time) error
}

// Scan is one ingested row after tenant and actor resolution.
type Scan struct {
	TenantID       uint
	ControlBatchID string
	ProductCode    string
	Quantity       int
	Area           string
	Location       string
	CounterID      uint
	CounterName    string
	SessionStart   *time.Time
	SessionEnd     *time.Time
	IsRecount      bool
}

type Service struct {
	db     *gorm.DB
	stats  Refresher
	logger *logrus.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, stats Refresher) *Service {
	return &Service{db: db, stats: stats, logger: config.GetLogger(), now: time.Now}
}

// Ingest appends scans to the scan table in one transaction. There is no
// deduplication: a resent chunk produces new rows. Statistics of every counter
// involved are rebuilt afterwards; a failure there is only logged.
func (s *Service) Ingest(ctx context.Context, scans []Scan) (int, error) {
	if len(scans) == 0 {
		return 0, ErrNoItems
	}

	now := s.now().UTC()
	rows := make([]models.ScanRecord, 0, len(scans))
	for _, sc := range scans {
		code := strings.TrimSpace(sc.ProductCode)
		if code == "" {
			return 0, ErrEmptyProductCode
		}
		batch := strings.TrimSpace(sc.ControlBatchID)
		if batch == "" {
			return 0, ErrMissingBatch
		}
		if sc.TenantID == 0 {
			return 0, ErrMissingTenant
		}
		scannedAt := now
		if sc.SessionEnd != nil && !sc.SessionEnd.IsZero() {
			scannedAt = sc.SessionEnd.UTC()
		}
		rows = append(rows, models.ScanRecord{
			TenantID:       sc.TenantID,
			ControlBatchID: batch,
			ProductCode:    code,
			Quantity:       sc.Quantity,
			Area:           nullable(sc.Area),
			Location:       nullable(sc.Location),
			CounterID:      sc.CounterID,
			CounterName:    sc.CounterName,
			ScannedAt:      scannedAt,
			ScanStartedAt:  nonZero(sc.SessionStart),
			ScanEndedAt:    nonZero(sc.SessionEnd),
			IsRecount:      sc.IsRecount,
			Status:         models.ScanStatusPending,
			SyncedAt:       now,
		})
	}

	if err := s.db.WithContext(ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return 0, err
	}

	s.refreshCounters(ctx, rows)
	return len(rows), nil
}

// refreshCounters rebuilds stats once per counter and scan day.
func (s *Service) refreshCounters(ctx context.Context, rows []models.ScanRecord) {
	if s.stats == nil {
		return
	}
	type key struct {
		counter uint
		day     string
	}
	done := make(map[key]struct{})
	for _, r := range rows {
		k := key{r.CounterID, r.ScannedAt.Format(time.DateOnly)}
		if _, ok := done[k]; ok {
			continue
		}
		done[k] = struct{}{}
		if err := s.stats.Refresh(ctx, r.CounterID, models.RoleCounter, r.ScannedAt); err != nil {
			config.LogError(s.logger, "counting", "Ingest", "stats refresh failed", r.CounterID, err)
		}
	}
}

// History returns the latest scans of a counter, newest first.
func (s *Service) History(ctx context.Context, counterID uint, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var rows []models.ScanRecord
	err := s.db.WithContext(ctx).
		Where("counter_id = ?", counterID).
		Order("scanned_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func nullable(s string) *string {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return &v
}

func nonZero(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
