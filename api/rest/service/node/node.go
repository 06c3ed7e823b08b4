package node

import (
	"context"

	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/pkg/db"
	"gorm.io/gorm"
)

// Service reads the node heartbeat projection.
type Service interface {
	WithDatabase(*gorm.DB) Service
	List() ([]models.NodeHeartbeat, error)
}

type nodeService struct {
	ctx context.Context
	db  *gorm.DB
}

func New(ctx context.Context) Service {
	return &nodeService{ctx: ctx}
}

func (n *nodeService) connection() *gorm.DB {
	if n.db == nil {
		n.db = db.Connection()
	}
	return n.db
}

func (n *nodeService) List() ([]models.NodeHeartbeat, error) {
	var nodes []models.NodeHeartbeat
	err := n.connection().WithContext(n.ctx).
		Order("node_id asc").
		Find(&nodes).Error
	return nodes, err
}

// WithDatabase allows tests to override the database backing the service.
func (n *nodeService) WithDatabase(conn *gorm.DB) Service {
	if conn == nil {
		return n
	}
	n.db = conn
	return n
}
