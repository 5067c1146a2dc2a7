package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/s92475mark/remote-file-access/config"
	"github.com/s92475mark/remote-file-access/controllers"
	"github.com/s92475mark/remote-file-access/middleware"
	"github.com/s92475mark/remote-file-access/models"
	"github.com/s92475mark/remote-file-access/services"
	"github.com/s92475mark/remote-file-access/utils"
)

// Deps are the engine services the router wires into handlers. They are
// constructed once in main and injected here.
type Deps struct {
	Files     *services.FileService
	Assembler *services.Assembler
	Shares    *services.ShareService
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, deps Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	if cfg.LogPath != "" {
		gl, err := utils.NewRollingFileLogger(cfg.LogPath+".access", cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
		if err == nil {
			r.Use(utils.Ginzap(gl, time.RFC3339, true))
			r.Use(utils.RecoveryWithZap(gl, false))
		} else {
			r.Use(gin.Recovery())
		}
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Content-Range"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db)
	fileController := controllers.NewFileController(
		deps.Files,
		deps.Assembler,
		deps.Shares,
		int64(cfg.MaxUploadSizeMB)*1024*1024,
	)

	authGroup := r.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	files := r.Group("/files")

	// Public capability-token path: the token itself grants access.
	files.GET("/shared/:share_token", fileController.SharedDownload)
	// Short-lived token path: the token itself is the credential.
	files.GET("/download_with_token", fileController.DownloadWithToken)
	// Chunk slots are keyed by upload id; the session was opened by an
	// authenticated init call.
	files.POST("/upload_chunk", fileController.UploadChunk)

	protected := files.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	protected.POST("/upload",
		middleware.RequirePermission(db, models.PermFileUpload), fileController.Upload)
	protected.POST("/upload/init",
		middleware.RequirePermission(db, models.PermFileUpload), fileController.UploadInit)
	protected.POST("/upload_complete",
		middleware.RequirePermission(db, models.PermFileUpload), fileController.UploadComplete)
	protected.GET("/list",
		middleware.RequirePermission(db, models.PermFileRead), fileController.List)
	protected.PATCH("/:storage_key/status",
		middleware.RequirePermission(db, models.PermFilePermanent), fileController.UpdateStatus)
	protected.DELETE("/:storage_key",
		middleware.RequirePermission(db, models.PermFileDelete), fileController.Delete)
	protected.GET("/:storage_key/download",
		middleware.RequirePermission(db, models.PermFileRead), fileController.Download)
	protected.POST("/:storage_key/download-token",
		middleware.RequirePermission(db, models.PermFileRead), fileController.DownloadToken)
	protected.POST("/:storage_key/share",
		middleware.RequirePermission(db, models.PermFileShare), fileController.CreateShare)
	protected.DELETE("/:storage_key/share",
		middleware.RequirePermission(db, models.PermFileShare), fileController.RevokeShare)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
