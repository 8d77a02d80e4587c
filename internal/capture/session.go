package capture

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actor identifies who is capturing on this device.
type Actor struct {
	ID   uint
	Name string
}

// SessionInfo is shared by both session variants.
type SessionInfo struct {
	ID             string
	ControlBatchID string
	Area           string
	TenantID       uint
	Actor          Actor
	StartedAt      time.Time
	// LastSyncedAt is zero until a sync of this session was fully confirmed.
	LastSyncedAt   time.Time
}

func (s SessionInfo) Info() SessionInfo { return s }

// Session is either a FixedLocationSession or a DynamicLocationSession.
// The set is closed: resolveLocation is unexported.
type Session interface {
	Info() SessionInfo
	resolveLocation(scanLocation string) (string, error)
}

// FixedLocationSession applies one location (possibly empty) to every scan.
type FixedLocationSession struct {
	SessionInfo
	Location string
}

func (s FixedLocationSession) resolveLocation(string) (string, error) {
	return strings.TrimSpace(s.Location), nil
}

// DynamicLocationSession requires a location with every product scan (1:1 mode).
type DynamicLocationSession struct {
	SessionInfo
}

func (s DynamicLocationSession) resolveLocation(scanLocation string) (string, error) {
	loc := strings.TrimSpace(scanLocation)
	if loc == "" {
		return "", ErrLocationRequired
	}
	return loc, nil
}

// EffectiveLocation returns the location a scan is recorded under.
func EffectiveLocation(sess Session, scanLocation string) (string, error) {
	return sess.resolveLocation(scanLocation)
}

// NewSessionInfo validates and normalizes the header of a new session.
func NewSessionInfo(controlBatchID, area string, tenantID uint, actor Actor, startedAt time.Time) (SessionInfo, error) {
	info := SessionInfo{
		ID:             uuid.NewString(),
		ControlBatchID: strings.TrimSpace(controlBatchID),
		Area:           strings.TrimSpace(area),
		TenantID:       tenantID,
		Actor:          actor,
		StartedAt:      startedAt,
	}
	if info.ControlBatchID == "" {
		return SessionInfo{}, ErrMissingControlBatch
	}
	if info.Area == "" {
		return SessionInfo{}, ErrMissingArea
	}
	return info, nil
}

func modeOf(sess Session) string {
	switch sess.(type) {
	case FixedLocationSession:
		return modeFixed
	default:
		return modeDynamic
	}
}

const (
	modeFixed   = "fixed"
	modeDynamic = "dynamic"
)
