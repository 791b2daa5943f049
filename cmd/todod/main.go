package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/philboiv1n/todolist/internal/config"
	"github.com/philboiv1n/todolist/internal/httpapi"
	"github.com/philboiv1n/todolist/internal/repository"
	"github.com/philboiv1n/todolist/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	listRepo := repository.NewListRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	metaRepo := repository.NewMetaRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)

	accessSvc := service.NewAccessService(listRepo, userRepo)
	taskSvc := service.NewTaskService(db, accessSvc, listRepo, taskRepo)
	listSvc := service.NewListService(db, accessSvc, listRepo, userRepo, metaRepo, cfg.EnableListOrdering)
	userSvc := service.NewUserService(userRepo, listRepo, attemptRepo, accessSvc)
	maintSvc := service.NewMaintenanceService(attemptRepo, cfg.AttemptRetention)

	scheduler := service.NewSchedulerService(time.Local)
	if cfg.MaintenanceInterval > 0 {
		if _, err := scheduler.ScheduleInterval(cfg.MaintenanceInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := maintSvc.PruneLoginAttempts(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("maintenance: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule maintenance: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	api := httpapi.New(cfg, userSvc, taskSvc, listSvc, attemptRepo)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("[info] todolist server listening on %s", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
