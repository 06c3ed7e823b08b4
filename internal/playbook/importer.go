package playbook

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/pkg/log"
	schema "github.com/drover-sh/drover/pkg/playbook"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Importer persists playbook definitions runs can resolve as their source.
type Importer struct {
	db *gorm.DB
}

// NewImporter creates a new importer. The provided db connection must be non-nil.
func NewImporter(dbConn *gorm.DB) *Importer {
	if dbConn == nil {
		panic("playbook importer requires a database connection")
	}
	return &Importer{db: dbConn}
}

// Apply persists the definition, replacing any previous revision with the
// same alias, and returns the stored record.
func (i *Importer) Apply(ctx context.Context, def *schema.Definition) (*models.Playbook, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	raw, err := yaml.Marshal(def)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &models.Playbook{
		ID:         uuid.New(),
		Alias:      def.Metadata.Alias,
		Definition: string(raw),
		StepCount:  len(def.Steps),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = i.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "alias"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"definition": record.Definition,
				"step_count": record.StepCount,
				"updated_at": now,
			}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}

	var persisted models.Playbook
	if err := i.db.WithContext(ctx).First(&persisted, "alias = ?", def.Metadata.Alias).Error; err != nil {
		return nil, err
	}
	return &persisted, nil
}

// LoadDir applies every playbook document found under dir, matching
// yaml files at any depth. It returns the number of applied definitions.
func (i *Importer) LoadDir(ctx context.Context, dir string) (int, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{yaml,yml}")
	if err != nil {
		return 0, fmt.Errorf("glob playbook dir: %w", err)
	}

	applied := 0
	for _, match := range matches {
		data, err := fs.ReadFile(os.DirFS(dir), match)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", match, err)
		}

		def, err := schema.Parse(data)
		if err != nil {
			log.Warn("skipping invalid playbook file", "path", match, "error", err)
			continue
		}

		if _, err := i.Apply(ctx, def); err != nil {
			return applied, fmt.Errorf("apply %s: %w", match, err)
		}
		applied++
	}

	return applied, nil
}
