package database

import (
	"github.com/uptrace/bun"
	"github.com/ventryx/ventryx/internal/database/models"
	"github.com/ventryx/ventryx/internal/setup/config"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	level     *models.LevelModel
	config    *models.ConfigModel
	levelRole *models.LevelRoleModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, defaults config.Leveling, logger *zap.Logger) *Repository {
	return &Repository{
		level:     models.NewLevel(db, logger),
		config:    models.NewConfig(db, defaults, logger),
		levelRole: models.NewLevelRole(db, logger),
	}
}

// Level returns the user level model repository.
func (r *Repository) Level() *models.LevelModel {
	return r.level
}

// Config returns the guild config model repository.
func (r *Repository) Config() *models.ConfigModel {
	return r.config
}

// LevelRole returns the level role model repository.
func (r *Repository) LevelRole() *models.LevelRoleModel {
	return r.levelRole
}
