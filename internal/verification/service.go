package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"inventario-backend/internal/config"
	"inventario-backend/internal/locker"
	"inventario-backend/internal/models"
)

const (
	DefaultHistoryLimit = 100
	commitLockTTL       = 30 * time.Second
)

var (
	ErrBatchClosed      = errors.New("control batch already verified")
	ErrBatchLocked      = errors.New("control batch is being committed by another verifier")
	ErrMissingBatch     = errors.New("control_batch_id is required")
	ErrNoItems          = errors.New("verification has no items")
	ErrMixedBatch       = errors.New("all items must belong to the same control batch")
	ErrDuplicateProduct = errors.New("product appears more than once in the verification")
	ErrMissingProduct   = errors.New("product_code is required")
)

// CatalogLookup is the bulk master catalog read.
type CatalogLookup interface {
	LookupProducts(ctx context.Context, tenantID uint, codes []string) (map[string]models.MasterProduct, error)
}

// Refresher rebuilds the derived statistics of a user.
type Refresher interface {
	Refresh(ctx context.Context, userID uint, role models.UserRole, at time.Time) error
}

type Service struct {
	db      *gorm.DB
	catalog CatalogLookup
	locks   locker.Locker
	stats   Refresher
	logger  *logrus.Logger
	now     func() time.Time
}

// NewService wires the fusion engine and commit. locks and stats may be nil.
func NewService(db *gorm.DB, catalog CatalogLookup, locks locker.Locker, stats Refresher) *Service {
	return &Service{
		db:      db,
		catalog: catalog,
		locks:   locks,
		stats:   stats,
		logger:  config.GetLogger(),
		now:     time.Now,
	}
}

// IsClosed reports whether the batch already has verified rows.
func (s *Service) IsClosed(ctx context.Context, tenantID uint, controlBatchID string) (bool, error) {
	return isClosed(s.db.WithContext(ctx), tenantID, controlBatchID)
}

func isClosed(db *gorm.DB, tenantID uint, controlBatchID string) (bool, error) {
	var count int64
	err := db.Model(&models.VerificationRecord{}).
		Where("tenant_id = ? AND control_batch_id = ? AND state = ?", tenantID, controlBatchID, models.VerificationStateVerified).
		Count(&count).Error
	return count > 0, err
}

// Fuse builds the reconciled view of a batch from its scans and the master
// catalog. A closed batch returns ErrBatchClosed. Scans are read in ascending
// id order. The catalog is read with one bulk lookup over the distinct codes.
func (s *Service) Fuse(ctx context.Context, tenantID uint, controlBatchID string) ([]FusionRecord, error) {
	controlBatchID = strings.TrimSpace(controlBatchID)
	if controlBatchID == "" {
		return nil, ErrMissingBatch
	}

	closed, err := s.IsClosed(ctx, tenantID, controlBatchID)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, ErrBatchClosed
	}

	var scans []models.ScanRecord
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND control_batch_id = ?", tenantID, controlBatchID).
		Order("id ASC").
		Find(&scans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load scans: %w", err)
	}

	counted := Aggregate(scans)
	if len(counted) == 0 {
		return []FusionRecord{}, nil
	}

	codes := make([]string, 0, len(counted))
	for _, p := range counted {
		codes = append(codes, p.ProductCode)
	}
	master, err := s.catalog.LookupProducts(ctx, tenantID, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to load master catalog: %w", err)
	}

	return Fuse(controlBatchID, counted, master), nil
}

// CommitInput is a verifier's final set of quantities for one batch.
type CommitInput struct {
	TenantID        uint
	ControlBatchID  string
	VerifierID      uint
	VerifierName    string
	DurationSeconds int
	Items           []FusionRecord
}

// Commit stores every item as a verified row in one insert and closes the
// batch. Variance is recomputed from the verified and system quantities.
// Nothing is written when the batch is already closed or when the insert fails.
func (s *Service) Commit(ctx context.Context, in CommitInput) (int, error) {
	rows, err := s.buildRecords(in)
	if err != nil {
		return 0, err
	}

	if s.locks != nil {
		key := fmt.Sprintf("verification:commit:%d:%s", in.TenantID, rows[0].ControlBatchID)
		release, err := s.locks.Obtain(ctx, key, commitLockTTL)
		if errors.Is(err, locker.ErrNotObtained) {
			return 0, ErrBatchLocked
		}
		if err != nil {
			return 0, fmt.Errorf("failed to obtain commit lock: %w", err)
		}
		defer release()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed, err := isClosed(tx, in.TenantID, rows[0].ControlBatchID)
		if err != nil {
			return err
		}
		if closed {
			return ErrBatchClosed
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, err
	}

	if s.stats != nil {
		if err := s.stats.Refresh(ctx, in.VerifierID, models.RoleVerifier, rows[0].CommittedAt); err != nil {
			config.LogError(s.logger, "verification", "Commit", "stats refresh failed", in.VerifierID, err)
		}
	}
	return len(rows), nil
}

func (s *Service) buildRecords(in CommitInput) ([]models.VerificationRecord, error) {
	batch := strings.TrimSpace(in.ControlBatchID)
	if batch == "" {
		return nil, ErrMissingBatch
	}
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}

	duration := in.DurationSeconds
	if duration < 0 {
		duration = 0
	}
	now := s.now().UTC()
	seen := make(map[string]struct{}, len(in.Items))
	rows := make([]models.VerificationRecord, 0, len(in.Items))

	for _, it := range in.Items {
		if b := strings.TrimSpace(it.ControlBatchID); b != "" && b != batch {
			return nil, ErrMixedBatch
		}
		code := strings.TrimSpace(it.ProductCode)
		if code == "" {
			return nil, ErrMissingProduct
		}
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProduct, code)
		}
		seen[code] = struct{}{}

		desc := it.Description
		if desc == "" && !it.InMasterCatalog {
			desc = NotInCatalog
		}
		rows = append(rows, models.VerificationRecord{
			TenantID:                    in.TenantID,
			ControlBatchID:              batch,
			ProductCode:                 code,
			Description:                 desc,
			SystemQuantity:              it.SystemQuantity,
			CountedQuantity:             it.CountedQuantity,
			VerifiedQuantity:            it.VerifiedQuantity,
			Variance:                    it.VerifiedQuantity - it.SystemQuantity,
			InMasterCatalog:             it.InMasterCatalog,
			Forced:                      !it.InMasterCatalog,
			Counted:                     it.CountedQuantity > 0,
			Area:                        nullable(it.Area),
			Location:                    nullable(it.Location),
			VerifierID:                  in.VerifierID,
			VerifierName:                in.VerifierName,
			VerificationDurationSeconds: duration,
			CommittedAt:                 now,
			State:                       models.VerificationStateVerified,
		})
	}
	return rows, nil
}

// History returns the latest verified rows of a verifier, newest first.
func (s *Service) History(ctx context.Context, verifierID uint, limit int) ([]models.VerificationRecord, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	var rows []models.VerificationRecord
	err := s.db.WithContext(ctx).
		Where("verifier_id = ?", verifierID).
		Order("committed_at DESC").
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
