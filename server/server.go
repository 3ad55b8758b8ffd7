package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"Resona/cache"
	"Resona/changelog"
	"Resona/config"
	"Resona/db"
	"Resona/logger"
	"Resona/repository"
	"Resona/storage"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database via GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if err := db.AutoMigrateModels(
		&changelog.ChangeRow{},
		&changelog.SyncPoint{},
		&repository.ActionRow{},
	); err != nil {
		logger.Fatal("Failed to migrate sync tables", logger.ErrorField(err))
	}

	ensureDirExists(cfg.AssetsDir)

	userRepo := repository.NewMySQLUserRepository()
	projectRepo := repository.NewMySQLProjectRepository()
	trackRepo := repository.NewMySQLTrackRepository()
	regionRepo := repository.NewMySQLRegionRepository()
	actionRepo := repository.NewActionRepository(db.GormDB)
	assets := storage.NewAssetManager(cfg)

	// 初始化处理器
	apiHandler := NewAPIHandler(cfg, userRepo, projectRepo, trackRepo, regionRepo, actionRepo, assets)
	defer apiHandler.closeSessions()

	// 监听资产目录：本地文件一旦被重新导出，重置上传标记，
	// 下一次 push 会重新上传
	watcherCtx, cancelWatcher := context.WithCancel(context.Background())
	defer cancelWatcher()
	watcher, err := storage.NewAssetWatcher(cfg.AssetsDir, func(path string) {
		if err := trackRepo.ClearUploadedByPath(watcherCtx, path); err != nil {
			logger.Warn("failed to reset uploaded flag for changed asset",
				logger.String("path", path), logger.ErrorField(err))
		}
	})
	if err != nil {
		logger.Warn("asset watcher unavailable", logger.ErrorField(err))
	} else {
		go watcher.Run(watcherCtx)
		defer watcher.Close()
	}

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// 项目与音轨
	router.HandleFunc("/api/projects", apiHandler.AuthMiddleware(apiHandler.CreateProjectHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}", apiHandler.AuthMiddleware(apiHandler.GetProjectHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/tracks", apiHandler.AuthMiddleware(apiHandler.AddTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/tracks/{track_id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)

	// 区块编辑
	router.HandleFunc("/api/projects/{id}/regions", apiHandler.AuthMiddleware(apiHandler.PasteRegionHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/regions/{region_id}", apiHandler.AuthMiddleware(apiHandler.DeleteRegionHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/projects/{id}/regions/{region_id}/crop-start", apiHandler.AuthMiddleware(apiHandler.CropRegionStartHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/regions/{region_id}/crop-end", apiHandler.AuthMiddleware(apiHandler.CropRegionEndHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/regions/{region_id}/shift", apiHandler.AuthMiddleware(apiHandler.ShiftRegionHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/projects/{id}/regions/{region_id}/split", apiHandler.AuthMiddleware(apiHandler.SplitRegionHandler)).Methods(http.MethodPost)

	// 历史记录
	router.HandleFunc("/api/projects/{id}/undo", apiHandler.AuthMiddleware(apiHandler.UndoHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/redo", apiHandler.AuthMiddleware(apiHandler.RedoHandler)).Methods(http.MethodPost)

	// 同步与冲突
	router.HandleFunc("/api/projects/{id}/sync/pull", apiHandler.AuthMiddleware(apiHandler.PullHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/sync/push", apiHandler.AuthMiddleware(apiHandler.PushHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/projects/{id}/sync/state", apiHandler.AuthMiddleware(apiHandler.SyncStateHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/conflicts", apiHandler.AuthMiddleware(apiHandler.GetConflictsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/projects/{id}/conflicts/{region_id}", apiHandler.AuthMiddleware(apiHandler.ResolveConflictHandler)).Methods(http.MethodPost)

	// 事件推送
	router.HandleFunc("/ws/projects/{id}", apiHandler.WSHandler)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("Server starting",
			logger.String("addr", cfg.HTTPAddr),
			logger.String("replicaId", cfg.ReplicaID))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("Creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Fatal("Failed to create directory",
				logger.String("path", path), logger.ErrorField(err))
		}
	} else if err != nil {
		logger.Fatal("Failed to check directory",
			logger.String("path", path), logger.ErrorField(err))
	}
}
