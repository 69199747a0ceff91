package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lub-reward-system/config"
	"lub-reward-system/handlers"
	"lub-reward-system/middleware"
	"lub-reward-system/models"
	"lub-reward-system/services"
	"lub-reward-system/utils"
	"lub-reward-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-Actor-FID, X-Actor-Username",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitEvidenceStore(); err != nil {
		log.Fatal("failed to initialize evidence store:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.ActorRecord{},
		&models.ActivityEvent{},
		&models.CommunityReport{},
		&models.Challenge{},
		&models.ChallengeResult{},
		&models.ViralDetection{},
		&models.ProfileMirror{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	settings, err := config.LoadEngineSettings(os.Getenv("ENGINE_CONFIG"))
	if err != nil {
		log.Fatal("failed to load engine settings:", err)
	}

	ledger := services.NewLedgerService(db, settings)
	detector := services.NewViralDetectorService(db, settings, ledger, nil)
	engine, err := services.NewChallengeEngine(db, settings, ledger)
	if err != nil {
		log.Fatal("failed to load challenge catalog:", err)
	}

	// --- CONFIGURE external collaborators ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("LUB_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("LUB_SERVICE_TOKEN environment variable not set")
	}
	distributionURL := os.Getenv("DISTRIBUTION_SERVICE_URL")
	if distributionURL == "" {
		log.Fatal("DISTRIBUTION_SERVICE_URL environment variable not set")
	}
	// --- END CONFIG ---

	profileSync := workers.NewProfileSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", serviceToken)
	distribution := workers.NewDistributionClient(db, distributionURL, serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.PollDistributions(ctx, distribution, 15*time.Second)

	go func() {
		log.Println("Starting Profile Sync Worker...")
		profileSync.Start(ctx)
	}()

	sched, err := services.StartCleanupScheduler(ledger, detector, engine)
	if err != nil {
		log.Fatal("failed to start cleanup scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	// ✅ Setup routes — enforced Gateway auth on everything
	handlers.SetupChallengeRoutes(app, engine)
	handlers.SetupViralRoutes(app, detector)
	handlers.SetupModerationRoutes(app, ledger)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Profile Sync Worker running")
	log.Println("✅ Reward distribution polling running (every 15s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
