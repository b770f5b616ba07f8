package repos

import (
	"gorm.io/gorm"

	"github.com/latticedb/lattice-backend/internal/data/repos/graph"
	"github.com/latticedb/lattice-backend/internal/platform/logger"
)

type EntityRepo = graph.EntityRepo
type LinkRepo = graph.LinkRepo
type AclRepo = graph.AclRepo
type TypeRepo = graph.TypeRepo

type LatestQuery = graph.LatestQuery
type HopQuery = graph.HopQuery

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return graph.NewEntityRepo(db, baseLog)
}

func NewLinkRepo(db *gorm.DB, baseLog *logger.Logger) LinkRepo {
	return graph.NewLinkRepo(db, baseLog)
}

func NewAclRepo(db *gorm.DB, baseLog *logger.Logger) AclRepo {
	return graph.NewAclRepo(db, baseLog)
}

func NewTypeRepo(db *gorm.DB, baseLog *logger.Logger) TypeRepo {
	return graph.NewTypeRepo(db, baseLog)
}
