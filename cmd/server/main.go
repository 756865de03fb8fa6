package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/formistiq/backend/internal/api"
	"github.com/formistiq/backend/internal/auth"
	"github.com/formistiq/backend/internal/generator"
	"github.com/formistiq/backend/internal/llm"
	"github.com/formistiq/backend/internal/repository"
	"github.com/formistiq/backend/internal/repository/mongo"
	"github.com/formistiq/backend/internal/repository/sqlite"
	"github.com/formistiq/backend/internal/validator"
)

func logConfig() {
	log.Println("=== Formistiq Configuration ===")

	// Log FORMISTIQ_* env vars
	envVars := []struct {
		name         string
		defaultValue string
	}{
		{"FORMISTIQ_API_PORT", "8080"},
		{"FORMISTIQ_DB_DRIVER", "mongo"},
		{"FORMISTIQ_MONGO_URI", "mongodb://localhost:27017"},
		{"FORMISTIQ_MONGO_DB", "formistiq"},
		{"FORMISTIQ_SQLITE_PATH", "data/formistiq.db"},
		{"FORMISTIQ_CORS_ORIGINS", "* (allow all)"},
		{"FORMISTIQ_LLM_MODEL", "(provider default)"},
	}

	for _, ev := range envVars {
		value := os.Getenv(ev.name)
		if value == "" {
			log.Printf("  %s: %s (default)", ev.name, ev.defaultValue)
		} else {
			log.Printf("  %s: %s", ev.name, value)
		}
	}

	// Log API key availability (not the actual keys)
	apiKeys := []string{"GEMINI_API_KEY", "OPENAI_API_KEY"}
	var configured []string
	for _, key := range apiKeys {
		if os.Getenv(key) != "" {
			configured = append(configured, key)
		}
	}
	if len(configured) > 0 {
		log.Printf("  API keys configured: %v", configured)
	} else {
		log.Println("  API keys configured: (none)")
	}

	if os.Getenv("FORMISTIQ_JWT_SECRET") != "" {
		log.Println("  FORMISTIQ_JWT_SECRET: (set)")
	} else {
		log.Println("  FORMISTIQ_JWT_SECRET: (not set!)")
	}

	log.Println("===============================")
}

func openRepository() (repository.Repository, error) {
	driver := os.Getenv("FORMISTIQ_DB_DRIVER")
	if driver == "" {
		driver = "mongo"
	}

	switch driver {
	case "sqlite":
		dbPath := os.Getenv("FORMISTIQ_SQLITE_PATH")
		if dbPath == "" {
			dbPath = filepath.Join("data", "formistiq.db")
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		log.Printf("Database: sqlite %s", dbPath)
		return sqlite.New(dbPath)
	default:
		uri := os.Getenv("FORMISTIQ_MONGO_URI")
		if uri == "" {
			uri = "mongodb://localhost:27017"
		}
		dbName := os.Getenv("FORMISTIQ_MONGO_DB")
		if dbName == "" {
			dbName = "formistiq"
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Printf("Database: mongo %s/%s", uri, dbName)
		return mongo.New(ctx, uri, dbName)
	}
}

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logConfig()

	port := os.Getenv("FORMISTIQ_API_PORT")
	if port == "" {
		port = "8080"
	}

	secret := os.Getenv("FORMISTIQ_JWT_SECRET")
	if secret == "" {
		log.Fatal("FORMISTIQ_JWT_SECRET is required")
	}
	tokens := auth.NewTokens(secret)

	repo, err := openRepository()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer repo.Close()

	// AI generation is optional - the server works without it for
	// manual form building.
	var genSvc *generator.Service

	llmFactory := llm.NewFactory()
	if llmFactory.Available() {
		val, err := validator.New()
		if err != nil {
			log.Fatalf("Failed to initialize validator: %v", err)
		}
		client, err := llmFactory.CreateDefaultClient()
		if err != nil {
			log.Fatalf("Failed to create model client: %v", err)
		}
		genSvc, err = generator.NewService(client, val, repo)
		if err != nil {
			log.Fatalf("Failed to initialize generator: %v", err)
		}
		log.Printf("AI generation enabled (provider: %s, model: %s)", client.Provider(), client.Model())
	} else {
		log.Println("Warning: No LLM API key set (GEMINI_API_KEY or OPENAI_API_KEY) - AI generation endpoints will be disabled")
	}

	handler := api.NewHandler(repo, tokens, genSvc)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = api.Logger(h)
	corsOrigins := os.Getenv("FORMISTIQ_CORS_ORIGINS")
	h = api.CORS(api.CORSConfig{AllowedOrigins: corsOrigins})(h)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for AI generation
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Println("Shutting down server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
