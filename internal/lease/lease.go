package lease

import (
	"context"
	"time"

	"github.com/drover-sh/drover/internal/metrics"
	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/pkg/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Grace tolerates clock skew and network latency between a node's last
// renewal and the write it authorizes.
const Grace = 5 * time.Second

// Granter is the seam through which leases come into existence. The
// authority below only validates; granting and renewal belong to the task
// dispatch side, which may live in another process entirely.
type Granter interface {
	Grant(ctx context.Context, runID uuid.UUID, deviceIndex int, nodeID, token string, until *time.Time) error
}

// Authority validates lease ownership for strong RunDeviceState writes.
type Authority struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuthority(db *gorm.DB) *Authority {
	if db == nil {
		panic("lease authority requires a database connection")
	}
	return &Authority{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the authority's clock (for tests).
func (a *Authority) WithClock(now func() time.Time) *Authority {
	if now != nil {
		a.now = now
	}
	return a
}

// Validate reports whether node may apply a strong update to the device
// slot right now. The token comparison is skipped, not failed, when either
// side omits the token: older nodes do not carry fencing tokens yet.
func (a *Authority) Validate(ctx context.Context, runID uuid.UUID, deviceIndex int, nodeID, token string) bool {
	var state models.RunDeviceState
	err := a.db.WithContext(ctx).
		First(&state, "run_id = ? AND device_index = ?", runID, deviceIndex).Error
	if err != nil {
		a.reject(nodeID, "no_lease", runID, deviceIndex)
		return false
	}

	if state.LeaseOwner != nodeID {
		a.reject(nodeID, "owner_mismatch", runID, deviceIndex)
		return false
	}

	if token != "" && state.LeaseToken != "" && token != state.LeaseToken {
		a.reject(nodeID, "token_mismatch", runID, deviceIndex)
		return false
	}

	if state.LeaseUntil != nil && !a.now().Before(state.LeaseUntil.Add(Grace)) {
		a.reject(nodeID, "expired", runID, deviceIndex)
		return false
	}

	return true
}

func (a *Authority) reject(nodeID, reason string, runID uuid.UUID, deviceIndex int) {
	metrics.LeaseRejectionsTotal.WithLabelValues(nodeID, reason).Inc()
	log.Debug("lease validation failed",
		"node_id", nodeID,
		"run_id", runID,
		"device_index", deviceIndex,
		"reason", reason,
	)
}

// Grant writes or refreshes the lease fields of a device slot, creating the
// slot row when absent. It implements Granter so tests and the dispatch
// side share one code path for constructing lease states.
func (a *Authority) Grant(ctx context.Context, runID uuid.UUID, deviceIndex int, nodeID, token string, until *time.Time) error {
	state := &models.RunDeviceState{
		RunID:       runID,
		DeviceIndex: deviceIndex,
		Status:      models.DeviceStateStatusQueued,
		LeaseOwner:  nodeID,
		LeaseUntil:  until,
		LeaseToken:  token,
		UpdatedAt:   a.now(),
	}

	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}, {Name: "device_index"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"lease_owner": nodeID,
				"lease_until": until,
				"lease_token": token,
				"updated_at":  state.UpdatedAt,
			}),
		}).
		Create(state).Error
}
