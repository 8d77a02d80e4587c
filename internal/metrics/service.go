package metrics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inventario-backend/internal/models"
)

const dayLayout = "2006-01-02"

// Service rebuilds the stats cache from the scan and verification tables.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Refresh recomputes the day of at for the given role, then the lifetime
// summary. Admins have no productivity stats.
func (s *Service) Refresh(ctx context.Context, userID uint, role models.UserRole, at time.Time) error {
	if userID == 0 || role == models.RoleAdmin {
		return nil
	}
	if _, err := s.RefreshSession(ctx, userID, role, at); err != nil {
		return err
	}
	_, err := s.RefreshLifetime(ctx, userID)
	return err
}

// RefreshSession recomputes and stores one user's daily summary for a role.
// A day with no activity returns zero figures and writes nothing.
func (s *Service) RefreshSession(ctx context.Context, userID uint, role models.UserRole, at time.Time) (models.SessionStats, error) {
	day := at.UTC().Truncate(24 * time.Hour)
	db := s.db.WithContext(ctx)

	var (
		sess Session
		rows int
	)
	switch role {
	case models.RoleCounter:
		var scans []models.ScanRecord
		err := db.Where("counter_id = ? AND scanned_at >= ? AND scanned_at < ?", userID, day, day.Add(24*time.Hour)).
			Order("id ASC").
			Find(&scans).Error
		if err != nil {
			return models.SessionStats{}, fmt.Errorf("failed to load scans: %w", err)
		}
		verified, err := s.verifiedForBatches(db, scans)
		if err != nil {
			return models.SessionStats{}, err
		}
		sess, rows = CounterSession(scans, verified), len(scans)

	case models.RoleVerifier:
		var verified []models.VerificationRecord
		err := db.Where("verifier_id = ? AND committed_at >= ? AND committed_at < ?", userID, day, day.Add(24*time.Hour)).
			Order("id ASC").
			Find(&verified).Error
		if err != nil {
			return models.SessionStats{}, fmt.Errorf("failed to load verifications: %w", err)
		}
		sess, rows = VerifierSession(verified), len(verified)

	default:
		return models.SessionStats{}, fmt.Errorf("no session stats for role %q", role)
	}

	stats := models.SessionStats{
		UserID:        userID,
		Day:           day.Format(dayLayout),
		Role:          role,
		TenantID:      sess.TenantID,
		Pieces:        sess.Pieces,
		DistinctSKUs:  sess.DistinctSKUs,
		ActiveSeconds: sess.ActiveSeconds,
		Velocity:      sess.Velocity,
		Precision:     sess.Precision,
		UpdatedAt:     s.now(),
	}
	if rows == 0 {
		return stats, nil
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}, {Name: "role"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tenant_id", "pieces", "distinct_skus", "active_seconds", "velocity", "precision", "updated_at",
		}),
	}).Create(&stats).Error
	if err != nil {
		return models.SessionStats{}, fmt.Errorf("failed to store session stats: %w", err)
	}
	return stats, nil
}

// verifiedForBatches loads the verification rows of the batches the scans belong to.
func (s *Service) verifiedForBatches(db *gorm.DB, scans []models.ScanRecord) ([]models.VerificationRecord, error) {
	byTenant := make(map[uint][]string)
	seen := make(map[string]struct{})
	for _, r := range scans {
		key := fmt.Sprintf("%d/%s", r.TenantID, r.ControlBatchID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		byTenant[r.TenantID] = append(byTenant[r.TenantID], r.ControlBatchID)
	}

	var out []models.VerificationRecord
	for tenantID, batches := range byTenant {
		var rows []models.VerificationRecord
		err := db.Where("tenant_id = ? AND control_batch_id IN ? AND state = ?", tenantID, batches, models.VerificationStateVerified).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load batch verifications: %w", err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

// RefreshLifetime recomputes and stores the all-time summary of a user.
func (s *Service) RefreshLifetime(ctx context.Context, userID uint) (models.LifetimeStats, error) {
	t, err := s.totals(s.db.WithContext(ctx), userID)
	if err != nil {
		return models.LifetimeStats{}, err
	}

	stats := Lifetime(userID, t)
	stats.UpdatedAt = s.now()

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"pieces_counted", "pieces_verified", "total_pieces", "distinct_skus", "distinct_tenants",
			"precision", "lifetime_hours", "hours_estimated", "average_velocity", "updated_at",
		}),
	}).Create(&stats).Error
	if err != nil {
		return models.LifetimeStats{}, fmt.Errorf("failed to store lifetime stats: %w", err)
	}
	return stats, nil
}

func (s *Service) totals(db *gorm.DB, userID uint) (Totals, error) {
	var t Totals

	var counted struct{ Pieces int64 }
	if err := db.Model(&models.ScanRecord{}).
		Select("COALESCE(SUM(quantity), 0) AS pieces").
		Where("counter_id = ?", userID).
		Scan(&counted).Error; err != nil {
		return t, fmt.Errorf("failed to sum scans: %w", err)
	}

	var verified struct {
		Pieces  int64
		Total   int64
		Matched int64
	}
	if err := db.Model(&models.VerificationRecord{}).
		Select("COALESCE(SUM(verified_quantity), 0) AS pieces, COUNT(*) AS total, COALESCE(SUM(CASE WHEN variance = 0 THEN 1 ELSE 0 END), 0) AS matched").
		Where("verifier_id = ?", userID).
		Scan(&verified).Error; err != nil {
		return t, fmt.Errorf("failed to sum verifications: %w", err)
	}

	var distinct struct {
		Skus    int64
		Tenants int64
	}
	if err := db.Raw(`
		SELECT
			(SELECT COUNT(*) FROM (
				SELECT product_code FROM scan_records WHERE counter_id = ?
				UNION
				SELECT product_code FROM verification_records WHERE verifier_id = ?
			) AS codes) AS skus,
			(SELECT COUNT(*) FROM (
				SELECT tenant_id FROM scan_records WHERE counter_id = ?
				UNION
				SELECT tenant_id FROM verification_records WHERE verifier_id = ?
			) AS tenants) AS tenants`,
		userID, userID, userID, userID).
		Scan(&distinct).Error; err != nil {
		return t, fmt.Errorf("failed to count distinct products: %w", err)
	}

	var tracked struct{ Seconds int64 }
	if err := db.Model(&models.SessionStats{}).
		Select("COALESCE(SUM(active_seconds), 0) AS seconds").
		Where("user_id = ?", userID).
		Scan(&tracked).Error; err != nil {
		return t, fmt.Errorf("failed to sum session time: %w", err)
	}

	t.PiecesCounted = int(counted.Pieces)
	t.PiecesVerified = int(verified.Pieces)
	t.Verifications = int(verified.Total)
	t.ZeroVariance = int(verified.Matched)
	t.DistinctSKUs = int(distinct.Skus)
	t.DistinctTenants = int(distinct.Tenants)
	t.TrackedSeconds = tracked.Seconds
	return t, nil
}
