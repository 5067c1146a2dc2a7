package main

import (
	"context"
	"time"

	"github.com/s92475mark/remote-file-access/config"
	"github.com/s92475mark/remote-file-access/models"
	"github.com/s92475mark/remote-file-access/routes"
	"github.com/s92475mark/remote-file-access/services"
	"github.com/s92475mark/remote-file-access/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.File{},
		&models.UploadSession{},
	)
	config.SeedAccessControl(db)

	blobs, err := services.NewDiskStore(cfg.StorageRoot)
	if err != nil {
		utils.Sugar.Fatalf("failed to open blob store: %v", err)
	}

	files := services.NewFileService(db, blobs, cfg.DefaultRetentionDays, utils.Sugar)
	assembler, err := services.NewAssembler(db, files, cfg.UploadTmpDir, cfg.ChunkSizeBytes, utils.Sugar)
	if err != nil {
		utils.Sugar.Fatalf("failed to open upload temp dir: %v", err)
	}
	shares := services.NewShareService(db, blobs)

	r := routes.SetupRouter(db, routes.Deps{
		Files:     files,
		Assembler: assembler,
		Shares:    shares,
	})

	// Reaper runs on its own timer, started after the store is ready and
	// stopped before the process exits.
	reapCtx, stopReaper := context.WithCancel(context.Background())
	reaper := services.NewReaper(db, blobs, assembler,
		time.Duration(cfg.ReapIntervalHours)*time.Hour, utils.Sugar)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(reapCtx)
	}()

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	err = utils.GraceServer(":"+cfg.AppPort, r)

	stopReaper()
	<-reaperDone

	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
