package callback

import (
	"context"

	"github.com/drover-sh/drover/internal/event"
	"github.com/drover-sh/drover/internal/ledger"
	"github.com/drover-sh/drover/internal/metrics"
	"github.com/drover-sh/drover/pkg/db"
	"github.com/drover-sh/drover/pkg/log"
	"gorm.io/gorm"
)

// Service ingests callback envelopes from nodes. The request walks
// admit-then-dispatch: once the ledger admits an event id the response is
// success no matter what the handler does, so a node retry can never apply
// the same side effect twice.
type Service interface {
	WithDatabase(*gorm.DB) Service
	Process(env event.Envelope) (*Result, error)
}

// Result reports the outcome of one envelope.
type Result struct {
	OK        bool `json:"ok"`
	Duplicate bool `json:"duplicate,omitempty"`
}

type callbackService struct {
	ctx        context.Context
	ledger     *ledger.Ledger
	dispatcher *event.Dispatcher
}

func New(ctx context.Context) Service {
	return &callbackService{ctx: ctx}
}

func (s *callbackService) connect() {
	if s.ledger == nil {
		conn := db.Connection()
		s.ledger = ledger.New(conn)
		s.dispatcher = event.NewDispatcher(conn)
	}
}

// Process admits the envelope and applies its effect. An error return
// means the event was NOT admitted (infrastructure failure); the node must
// retry with the same event id.
func (s *callbackService) Process(env event.Envelope) (*Result, error) {
	s.connect()

	admitted, err := s.ledger.Admit(s.ctx, env.EventID)
	if err != nil {
		return nil, err
	}
	if !admitted {
		metrics.EventsDuplicateTotal.Inc()
		log.Debug("duplicate event short-circuited", "event_id", env.EventID, "type", env.Type)
		return &Result{OK: true, Duplicate: true}, nil
	}

	metrics.EventsIngestedTotal.WithLabelValues(env.Type).Inc()

	// Post-admission failures are logged and swallowed. The ledger entry
	// stands, so a retry would be a duplicate; the dropped update converges
	// through later heartbeats and polling.
	if err := s.dispatcher.Dispatch(s.ctx, env); err != nil {
		log.Warn("event effect dropped after admission",
			"event_id", env.EventID,
			"type", env.Type,
			"error", err,
		)
	}

	return &Result{OK: true}, nil
}

// WithDatabase allows tests to override the database backing the service.
func (s *callbackService) WithDatabase(conn *gorm.DB) Service {
	if conn == nil {
		return s
	}
	s.ledger = ledger.New(conn)
	s.dispatcher = event.NewDispatcher(conn)
	return s
}
