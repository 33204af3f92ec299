package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/zaptask/zaptask/config"
	"github.com/zaptask/zaptask/pkg/database"
	"github.com/zaptask/zaptask/pkg/plan"
	"github.com/zaptask/zaptask/pkg/storage"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateCode builds a code like ZT-7KQ2M-9XWPT. The alphabet skips
// lookalike characters since codes get read out loud in support tickets.
func generateCode() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 0, 14)
	out = append(out, 'Z', 'T', '-')
	for i, b := range buf {
		if i == 5 {
			out = append(out, '-')
		}
		out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return string(out), nil
}

// Mints lifetime-deal redemption codes for a launch campaign.
func main() {
	tierFlag := flag.String("tier", "LTD_SOLO", "lifetime tier the codes redeem to")
	count := flag.Int("count", 10, "number of codes to generate")
	flag.Parse()

	tier, err := plan.Parse(*tierFlag)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if !tier.Lifetime() {
		log.Fatalf("❌ Tier %s is not a lifetime tier", tier)
	}

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := storage.NewStore(db.Pool)

	for i := 0; i < *count; i++ {
		code, err := generateCode()
		if err != nil {
			log.Fatalf("❌ Failed to generate code: %v", err)
		}
		if _, err := store.CreateRedemptionCode(ctx, code, tier); err != nil {
			log.Fatalf("❌ Failed to insert code: %v", err)
		}
		fmt.Println(code)
	}

	log.Printf("✅ Generated %d %s codes", *count, tier)
}
