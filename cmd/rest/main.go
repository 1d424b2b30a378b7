package main

import (
	"context"
	"log"
	"time"

	"ai-elearning-be/internal/bootstrap"
	"ai-elearning-be/internal/config"
	"ai-elearning-be/internal/server"
	"ai-elearning-be/internal/tracer"
	"ai-elearning-be/pkg/database"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	go func() {
		log.Println("Background: Starting Consumer Service...")
		if err := container.ConsumerService.Consume(context.Background()); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()

	// Periodic sweep catches reminders scheduled by other instances or
	// lost to a restart, and evicts expired cached documents.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := container.ReminderService.DispatchDue(context.Background()); err != nil {
				log.Printf("Background Reminder Sweep Error: %v", err)
			}
			if n := container.DocumentCache.SweepExpired(); n > 0 {
				log.Printf("Background: evicted %d expired cached documents", n)
			}
		}
	}()

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
