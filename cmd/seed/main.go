package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/zaptask/zaptask/config"
	"github.com/zaptask/zaptask/pkg/database"
	"github.com/zaptask/zaptask/pkg/models"
	"github.com/zaptask/zaptask/pkg/storage"
)

// Seeds demo companies for local development and staging environments.
func main() {
	count := flag.Int("count", 5, "number of demo companies to create")
	flag.Parse()

	cfg := config.Load()
	if cfg.APIEnvironment == "production" {
		log.Fatalf("❌ Refusing to seed a production environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}

	store := storage.NewStore(db.Pool)

	for i := 0; i < *count; i++ {
		company := &models.Company{
			Code:         strings.ToLower(gofakeit.LetterN(8)),
			Name:         gofakeit.Company(),
			BillingEmail: gofakeit.Email(),
		}
		if err := store.CreateCompany(ctx, company); err != nil {
			log.Fatalf("❌ Failed to create company: %v", err)
		}
		log.Printf("  created %s (%s)", company.Name, company.Code)
	}

	log.Printf("✅ Seeded %d demo companies", *count)
}
