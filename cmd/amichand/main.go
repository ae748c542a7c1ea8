package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dbehnke/amichand/backend/config"
	"github.com/dbehnke/amichand/backend/middleware"
	"github.com/dbehnke/amichand/internal/adminauth"
	"github.com/dbehnke/amichand/internal/ami"
	"github.com/dbehnke/amichand/internal/calllog"
	"github.com/dbehnke/amichand/internal/core"
	"github.com/dbehnke/amichand/internal/persistence"
	"github.com/dbehnke/amichand/internal/web"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var buildVersion = ""
var buildTime = ""

// feedManager translates parsed AMI frames into the header maps internal/core
// consumes, keeping internal/core free of any dependency on the transport
// package: it only ever sees map[string]string events.
func feedManager(manager *core.ChannelManager, msgs <-chan ami.Message) {
	for msg := range msgs {
		if len(msg.Headers) == 0 {
			continue
		}
		ev, ok := msg.Headers["Event"]
		if !ok || !manager.Accepts(ev) {
			continue
		}
		manager.OnEvent(msg.Headers)
	}
}

func main() {
	configFile := flag.String("config", "", "Path to config file (default: search ./config.yaml, data/config.yaml, etc.)")
	flag.Parse()

	cfg := config.Load(*configFile)

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("database open error: %v", err)
	}
	defer db.CloseSafe()

	gormDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("GORM database open error: %v", err)
	}
	if err := gormDB.AutoMigrate(&persistence.CallEvent{}); err != nil {
		log.Fatalf("GORM auto-migrate error: %v", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.DBPath))

	callEventRepo := persistence.NewCallEventRepository(gormDB)
	recentLog := calllog.New(cfg.CallLogMax, cfg.CallLogTTL)
	hub := web.NewHub(recentLog, logger)
	adminGate := adminauth.NewGate(cfg.AdminTokenHash)

	reporter := core.NewMultiReporter(
		core.NewLogReporter(logger),
		calllog.NewReporter(recentLog),
		persistence.NewReporter(callEventRepo, logger),
		hub,
	)

	manager := core.NewChannelManager(reporter)
	manager.TrunkAccountCodeLength = cfg.TrunkAccountCodeLength

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ok":      true,
			"version": buildVersion,
			"build":   buildTime,
		})
	})
	mux.HandleFunc("/api/recent-calls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recentLog.Recent())
	})

	flushHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		before := manager.ChannelCount()
		manager.Flush()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "channels_discarded": before})
	})
	mux.Handle("/api/admin/flush", middleware.RequireAdmin(adminGate)(flushHandler))

	mux.HandleFunc("/ws", hub.HandleWS(func(r *http.Request) bool { return true }))
	go hub.HeartbeatLoop(cfg.WSHeartbeatInterval)

	var cancelAMI context.CancelFunc
	if cfg.AMIEnabled {
		conn := ami.NewConnector(cfg.AMIHost, cfg.AMIPort, cfg.AMIUser, cfg.AMIPassword, cfg.AMIEvents, cfg.AMIRetryInterval, cfg.AMIRetryMax)

		var ctxAMI context.Context
		ctxAMI, cancelAMI = context.WithCancel(context.Background())

		go func() {
			for status := range conn.ConnectionStatusChan() {
				if status.Connected {
					logger.Info("AMI connection established", zap.Time("timestamp", status.Timestamp))
				} else if status.Error != nil {
					logger.Warn("AMI connection lost", zap.Error(status.Error), zap.Time("timestamp", status.Timestamp))
				} else {
					logger.Info("AMI connection closed", zap.Time("timestamp", status.Timestamp))
				}
			}
		}()

		if err := conn.Start(ctxAMI); err != nil {
			log.Printf("AMI start error: %v", err)
		} else {
			logger.Info("AMI connector started", zap.String("host", cfg.AMIHost), zap.Int("port", cfg.AMIPort))
		}

		go feedManager(manager, conn.Raw())
	} else {
		logger.Info("AMI disabled via config; channel tracker idle")
	}

	addr := ":" + cfg.Port
	loggingMW := middleware.Logging(logger)
	srv := &http.Server{Addr: addr, Handler: loggingMW(mux), ReadTimeout: 10 * time.Second, WriteTimeout: 15 * time.Second}

	go func() {
		log.Printf("%s starting on %s (env=%s) build=%s", cfg.Title, addr, cfg.Env, buildTime)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("shutdown signal received, shutting down...")

	if cancelAMI != nil {
		cancelAMI()
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		if err := srv.Close(); err != nil {
			log.Printf("server close error: %v", err)
		}
	}
	log.Printf("server stopped cleanly")
}
