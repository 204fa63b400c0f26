package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/velora-app/velora/internal/pkg/billing"
	"github.com/velora-app/velora/internal/pkg/cache"
	"github.com/velora-app/velora/internal/pkg/database"
	"github.com/velora-app/velora/internal/pkg/env"
	"github.com/velora-app/velora/internal/pkg/metrics/counter"
	"github.com/velora-app/velora/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Background payout sweep, in addition to the per-webhook sweep.
	svc := billing.NewServiceFromDB(database.GetDB(), billing.NewStripeClientFromEnv())
	sched, err := svc.StartPayoutScheduler(15 * time.Minute)
	if err != nil {
		log.Fatalf("could not start payout scheduler: %v", err)
	}

	// Drain referral click counters from Redis into the database.
	_, err = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			if err := counter.FlushAll(); err != nil {
				log.Printf("counter flush failed: %v", err)
			}
		}),
	)
	if err != nil {
		log.Fatalf("could not schedule counter flush: %v", err)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		_ = sched.Shutdown()
		_ = app.Shutdown()
	}()

	err = app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Velora",
		BodyLimit: 1048576, // 1 MiB, webhook payloads are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
