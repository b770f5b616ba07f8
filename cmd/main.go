package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/latticedb/lattice-backend/internal/clients/redis"
	"github.com/latticedb/lattice-backend/internal/data/db"
	"github.com/latticedb/lattice-backend/internal/data/repos"
	"github.com/latticedb/lattice-backend/internal/observability"
	"github.com/latticedb/lattice-backend/internal/platform/config"
	"github.com/latticedb/lattice-backend/internal/platform/logger"
	"github.com/latticedb/lattice-backend/internal/query/acl"
	"github.com/latticedb/lattice-backend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "lattice-backend",
		Environment: cfg.LogMode,
	})
	defer func() {
		if shutdownOTel != nil {
			_ = shutdownOTel(ctx)
		}
	}()

	// Postgres
	postgresService, err := db.NewPostgresService(cfg.Postgres, log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	entityRepo := repos.NewEntityRepo(thePG, log)
	linkRepo := repos.NewLinkRepo(thePG, log)
	aclRepo := repos.NewAclRepo(thePG, log)
	typeRepo := repos.NewTypeRepo(thePG, log)
	_ = typeRepo

	// ACL cache is advisory; the resolver works without it
	var aclCache acl.Cache
	if cfg.Redis.Addr != "" {
		cache, err := redis.NewAclCache(cfg.Redis, log)
		if err != nil {
			log.Warn("Redis init failed, running without acl cache", "error", err)
		} else {
			defer cache.Close()
			aclCache = cache
		}
	}
	aclResolver := acl.NewResolver(aclRepo, aclCache, log)

	// Services
	log.Info("Setting up services...")
	traversalService := services.NewGraphTraversalService(thePG, log, entityRepo, linkRepo, aclResolver)
	_ = traversalService

	log.Info("Graph query stack ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("Shutting down")
}
