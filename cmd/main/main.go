package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/autoservice-whatsapp/pkg/database"
	"github.com/gdbrns/autoservice-whatsapp/pkg/env"
	"github.com/gdbrns/autoservice-whatsapp/pkg/log"
	"github.com/gdbrns/autoservice-whatsapp/pkg/router"
	pkgWhatsApp "github.com/gdbrns/autoservice-whatsapp/pkg/whatsapp"

	"github.com/gdbrns/autoservice-whatsapp/internal"
	ctlHistory "github.com/gdbrns/autoservice-whatsapp/internal/history"
	"github.com/gdbrns/autoservice-whatsapp/internal/template"
	ctlVehicle "github.com/gdbrns/autoservice-whatsapp/internal/vehicle"
)

type Server struct {
	Address string
	Port    string
}

func main() {
	var err error

	// Tokens are issued by the back office, refuse to run without the key
	env.MustGetEnvString("JWT_SECRET_KEY")

	// Initialize Database
	ctxDB, cancelDB := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.OpenFromEnv(ctxDB)
	if err != nil {
		cancelDB()
		log.Print(nil).Fatal("Failed to open database: " + err.Error())
	}
	if err = database.EnsureSchema(ctxDB, db); err != nil {
		cancelDB()
		log.Print(nil).Fatal("Failed to prepare database schema: " + err.Error())
	}
	cancelDB()

	// Initialize WhatsApp Session Registry
	historyRepo := ctlHistory.NewRepository(db)
	clientFactory := pkgWhatsApp.NewClientFactoryFromEnv()
	registry := pkgWhatsApp.NewRegistry(pkgWhatsApp.LoadConfig(), clientFactory, pkgWhatsApp.Collaborators{
		Vehicles:  ctlVehicle.NewRepository(db),
		Templates: pkgWhatsApp.TemplateFillerFunc(template.Fill),
		History:   historyRepo,
	})

	// Intialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler:   router.HttpErrorHandler,
		BodyLimit:      router.BodyLimitBytes(),
		ReadBufferSize: 8192,
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Secret, X-Request-ID",
		AllowMethods: "GET,POST,DELETE",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Load Internal Routes
	internal.Routes(app, internal.Dependencies{
		Registry: registry,
		History:  historyRepo,
	})

	// Running Startup Tasks
	ctxStartup, cancelStartup := context.WithCancel(context.Background())
	go internal.Startup(ctxStartup, registry, clientFactory)

	// Running Routines Tasks
	internal.Routines(c, registry)

	// Get Server Configuration with defaults
	var serverConfig Server
	serverConfig.Address = env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")
	serverConfig.Port = env.GetEnvStringOrDefault("SERVER_PORT", "7001")

	// Start Server
	go func() {
		if err := app.Listen(serverConfig.Address + ":" + serverConfig.Port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown
	cancelStartup()

	// Wait 5 Seconds Before Graceful Shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Try To Shutdown Server
	err = app.ShutdownWithContext(ctxShutdown)
	if err != nil {
		log.Print(nil).Error(err.Error())
	}

	// Try To Shutdown Cron
	<-c.Stop().Done()

	// Close WhatsApp Sessions, credentials stay on disk for the next start
	if err = registry.Close(ctxShutdown); err != nil {
		log.Print(nil).Error("Failed to close WhatsApp sessions: " + err.Error())
	}

	if err = db.Close(); err != nil {
		log.Print(nil).Error("Failed to close database: " + err.Error())
	}
}
