package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"inventario-backend/internal/models"
)

const (
	// Active intervals at or above this are treated as corrupt timestamps.
	maxActiveInterval = 24 * time.Hour

	// Below this many hours velocity falls back to pieces per minute.
	minVelocityHours = 0.01

	// Lifetime average velocity needs at least this many hours.
	minLifetimeHours = 0.1

	// Pieces per hour assumed for history recorded without any timing.
	legacyPiecesPerHour = 400
)

// Session is one user's activity in one role for one day.
type Session struct {
	Pieces        int
	DistinctSKUs  int
	ActiveSeconds int64
	Velocity      int
	Precision     float64
	TenantID      *uint
}

// CounterSession summarises a day of scans. Active time is the length of the
// union of the sync intervals carried by the scans, so intervals that repeat or
// overlap count once. An interval that is not positive or spans a day or more
// is ignored. verified holds the verification rows of the batches the counter
// worked on, which give the counter's precision.
func CounterSession(scans []models.ScanRecord, verified []models.VerificationRecord) Session {
	var s Session
	if len(scans) == 0 {
		s.Precision = 100
		return s
	}

	skus := make(map[string]struct{})
	var spans []interval
	for _, r := range scans {
		s.Pieces += r.Quantity
		skus[r.ProductCode] = struct{}{}
		if r.ScanStartedAt == nil || r.ScanEndedAt == nil {
			continue
		}
		if d := r.ScanEndedAt.Sub(*r.ScanStartedAt); d > 0 && d < maxActiveInterval {
			spans = append(spans, interval{*r.ScanStartedAt, *r.ScanEndedAt})
		}
	}
	active := unionLength(spans)

	tenant := scans[len(scans)-1].TenantID
	s.TenantID = &tenant
	s.DistinctSKUs = len(skus)
	s.ActiveSeconds = int64(active / time.Second)
	s.Velocity = Velocity(s.Pieces, active)
	s.Precision = Precision(matches(verified), len(verified))
	return s
}

type interval struct{ start, end time.Time }

// unionLength returns the time covered by at least one of spans.
func unionLength(spans []interval) time.Duration {
	if len(spans) == 0 {
		return 0
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	var total time.Duration
	cur := spans[0]
	for _, sp := range spans[1:] {
		if sp.start.After(cur.end) {
			total += cur.end.Sub(cur.start)
			cur = sp
			continue
		}
		if sp.end.After(cur.end) {
			cur.end = sp.end
		}
	}
	return total + cur.end.Sub(cur.start)
}

// VerifierSession summarises a day of verified rows. Every row of a commit
// carries the duration of the whole commit, so it is counted once per
// (batch, commit time).
func VerifierSession(rows []models.VerificationRecord) Session {
	var s Session
	if len(rows) == 0 {
		s.Precision = 100
		return s
	}

	skus := make(map[string]struct{})
	type commit struct {
		tenant uint
		batch  string
		at     int64
	}
	commits := make(map[commit]struct{})
	var seconds int64

	for _, r := range rows {
		s.Pieces += r.VerifiedQuantity
		skus[r.ProductCode] = struct{}{}
		key := commit{r.TenantID, r.ControlBatchID, r.CommittedAt.UnixNano()}
		if _, seen := commits[key]; seen {
			continue
		}
		commits[key] = struct{}{}
		if r.VerificationDurationSeconds > 0 {
			seconds += int64(r.VerificationDurationSeconds)
		}
	}

	tenant := rows[0].TenantID
	s.TenantID = &tenant
	s.DistinctSKUs = len(skus)
	s.ActiveSeconds = seconds
	s.Velocity = Velocity(s.Pieces, time.Duration(seconds)*time.Second)
	s.Precision = Precision(matches(rows), len(rows))
	return s
}

// Velocity is pieces per hour. With no recorded time it is zero. When the
// time is too short to divide by, the work is treated as a single minute.
func Velocity(pieces int, active time.Duration) int {
	if active <= 0 {
		return 0
	}
	hours := active.Hours()
	if hours <= minVelocityHours {
		return pieces * 60
	}
	return int(math.Round(float64(pieces) / hours))
}

// Precision is the share of zero-variance rows as a percentage rounded to
// two decimals. It is 100 when nothing was verified.
func Precision(matched, total int) float64 {
	if total <= 0 {
		return 100
	}
	p, _ := decimal.NewFromInt(int64(matched)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		Float64()
	return p
}

// Totals are the all-time figures of one user read from the raw tables.
type Totals struct {
	PiecesCounted   int
	PiecesVerified  int
	DistinctSKUs    int
	DistinctTenants int
	Verifications   int
	ZeroVariance    int
	TrackedSeconds  int64
}

// Lifetime derives the lifetime summary from raw totals. History without any
// tracked time is estimated at a fixed pieces-per-hour rate.
func Lifetime(userID uint, t Totals) models.LifetimeStats {
	out := models.LifetimeStats{
		UserID:          userID,
		PiecesCounted:   t.PiecesCounted,
		PiecesVerified:  t.PiecesVerified,
		TotalPieces:     t.PiecesCounted + t.PiecesVerified,
		DistinctSKUs:    t.DistinctSKUs,
		DistinctTenants: t.DistinctTenants,
		Precision:       Precision(t.ZeroVariance, t.Verifications),
	}

	hours := float64(t.TrackedSeconds) / 3600
	if hours == 0 && out.TotalPieces > 0 {
		hours = float64(out.TotalPieces) / legacyPiecesPerHour
		out.HoursEstimated = true
	}
	out.LifetimeHours = decimal.NewFromFloat(hours).Round(2).InexactFloat64()
	if hours > minLifetimeHours {
		out.AverageVelocity = int(math.Round(float64(out.TotalPieces) / hours))
	}
	return out
}

// FormatActive renders seconds as "1h 35m".
func FormatActive(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
}

func matches(rows []models.VerificationRecord) int {
	n := 0
	for _, r := range rows {
		if r.Variance == 0 {
			n++
		}
	}
	return n
}
