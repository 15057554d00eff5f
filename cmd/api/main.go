package main

import (
	"context"
	"log"
	"os"
	"strconv"

	_ "model-review-api/api/swagger" // swagger docs
	"model-review-api/internal/database"
	"model-review-api/internal/handler"
	"model-review-api/internal/middleware"
	"model-review-api/internal/model"
	"model-review-api/internal/moderation"
	"model-review-api/internal/notify"
	"model-review-api/internal/repository"
	"model-review-api/internal/service"
	"model-review-api/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Model Review API
// @version         1.0
// @description     Approval workflow service: field-level change sandboxing, tiered reviewer resolution and notifications.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Repositories
	txm := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	reviewerRepo := repository.NewReviewerRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	orderRepo := repository.NewPurchaseOrderRepository(db)

	// Notification dispatcher (SMTP + websocket broadcasts)
	smtpPort, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	mailer := notify.NewMailer(notify.MailerConfig{
		Host:          os.Getenv("SMTP_HOST"),
		Port:          smtpPort,
		Username:      os.Getenv("SMTP_USERNAME"),
		Password:      os.Getenv("SMTP_PASSWORD"),
		From:          os.Getenv("SMTP_FROM"),
		SkipTLSVerify: os.Getenv("SMTP_SKIP_TLS_VERIFY") == "true",
	})
	dispatcher := notify.NewDispatcher(mailer, userRepo, wsHub)

	// Moderation registry: purchase orders are the built-in approvable type.
	// Managers form the first review tier, admins the final one: a manager
	// decision alone leaves the review pending until an admin acts.
	registry := moderation.NewRegistry()
	orderCfg := service.PurchaseOrderTypeConfig(orderRepo)
	orderCfg.SetReviewers = func(ctx context.Context, review *model.ModelReview, obj moderation.Approvable) ([]moderation.ReviewerSpec, error) {
		managers, err := userRepo.ListByRole(ctx, "manager")
		if err != nil {
			return nil, err
		}
		admins, err := userRepo.ListByRole(ctx, "admin")
		if err != nil {
			return nil, err
		}
		specs := make([]moderation.ReviewerSpec, 0, len(managers)+len(admins))
		for _, m := range managers {
			specs = append(specs, moderation.ReviewerSpec{UserID: m.ID, Level: 0})
		}
		for _, a := range admins {
			specs = append(specs, moderation.ReviewerSpec{UserID: a.ID, Level: 1})
		}
		return specs, nil
	}
	orderCfg.NextReviewers = func(ctx context.Context, review *model.ModelReview, obj moderation.Approvable, currentMax int) ([]moderation.ReviewerSpec, error) {
		// admins cap the chain; nothing escalates past them
		if currentMax > 0 {
			return nil, nil
		}
		admins, err := userRepo.ListByRole(ctx, "admin")
		if err != nil {
			return nil, err
		}
		specs := make([]moderation.ReviewerSpec, 0, len(admins))
		for _, a := range admins {
			specs = append(specs, moderation.ReviewerSpec{UserID: a.ID, Level: currentMax + 1})
		}
		return specs, nil
	}
	orderCfg.SideEffect = func(ctx context.Context, review *model.ModelReview, obj moderation.Approvable) error {
		log.Printf("purchase order %s review resolved: %s", review.ObjectID, review.ReviewStatus)
		return nil
	}
	if err := registry.Register(orderCfg); err != nil {
		log.Fatalf("Type registration failed: %v", err)
	}

	baseline := service.DiffBaselineSandbox
	if os.Getenv("DIFF_BASELINE") == "database" {
		baseline = service.DiffBaselineDatabase
	}

	// Services
	userService := service.NewUserService(userRepo)
	auditService := service.NewAuditService(auditRepo)
	reviewService := service.NewReviewService(registry, reviewRepo, reviewerRepo, auditRepo, txm, dispatcher)
	interceptService := service.NewInterceptService(registry, reviewRepo, auditRepo, txm, reviewService, baseline)
	orderService := service.NewPurchaseOrderService(orderRepo, interceptService)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	reviewHandler := handler.NewReviewHandler(reviewService)
	orderHandler := handler.NewPurchaseOrderHandler(orderService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""))
	reviewHandler.RegisterRoutes(router.Group(""))
	orderHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
