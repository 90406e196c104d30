// seed inserts invitation codes and demo marketplace data into the local dev
// database. Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/bridgezone/market-api/internal/domain"
	"github.com/bridgezone/market-api/internal/infrastructure/postgres"
	"golang.org/x/crypto/bcrypt"
)

type invitationSpec struct {
	code         string
	tier         domain.Tier
	verification domain.VerificationStatus
	email        string
	name         string
	maxUses      int
}

var invitations = []invitationSpec{
	// Investor demo code: enterprise access, pre-verified, multi-use.
	{"ASTERO1", domain.TierEnterprise, domain.VerificationVerified, "demo@bridgezone.test", "Astero Demo", 10},

	// Single-use partner codes.
	{"PARTNER-PREMIUM-01", domain.TierPremium, domain.VerificationVerified, "partner1@bridgezone.test", "Partner One", 1},
	{"PARTNER-PREMIUM-02", domain.TierPremium, domain.VerificationVerified, "partner2@bridgezone.test", "Partner Two", 1},
}

type productSpec struct {
	title       string
	description string
	priceCents  int64
}

var products = []productSpec{
	{"Restaurant equipment bundle", "Full kitchen line from a closed bistro, collection only.", 450_000},
	{"Office chairs, lot of 40", "Ergonomic chairs from a downsized office, light wear.", 120_000},
	{"Forklift, 2.5t diesel", "2019 model, 1200 operating hours, serviced.", 1_450_000},
	{"Pallet racking, 30 bays", "Disassembled and ready for transport.", 280_000},
	{"Espresso machine, 2-group", "Commercial grade, descaled and tested.", 95_000},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	// Invitation codes — idempotent re-runs leave existing rows alone.
	var codesInserted, codesSkipped int
	for _, spec := range invitations {
		tag, err := pool.Exec(ctx, `
			INSERT INTO invitation_codes (
				code, tier, verification_status, account_email, account_name, max_uses
			) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (code) DO NOTHING`,
			spec.code, spec.tier, spec.verification, spec.email, spec.name, spec.maxUses,
		)
		if err != nil {
			log.Fatalf("insert invitation %s: %v", spec.code, err)
		}
		if tag.RowsAffected() == 0 {
			codesSkipped++
		} else {
			codesInserted++
		}
	}

	// Demo seller with a premium plan and a handful of listings.
	hash, err := bcrypt.GenerateFromPassword([]byte("seed-password"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	plan := domain.PlanFor(domain.TierPremium)

	var sellerID string
	err = pool.QueryRow(ctx, `
		INSERT INTO users (email, name, company_name, password_hash, tier, subscription_status, verification_status)
		VALUES ($1, 'Seed Seller', 'Seed Trading GmbH', $2, $3, 'active', 'verified')
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id`,
		"seller@bridgezone.test", string(hash), domain.TierPremium,
	).Scan(&sellerID)
	if err != nil {
		log.Fatalf("upsert seller: %v", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO user_limits (user_id, max_products, max_purchases, period_started_at)
		VALUES ($1, $2, $3, date_trunc('month', NOW()))
		ON CONFLICT (user_id) DO UPDATE SET max_products = $2, max_purchases = $3, updated_at = NOW()`,
		sellerID, plan.MaxProducts, plan.MaxPurchases,
	)
	if err != nil {
		log.Fatalf("upsert seller limits: %v", err)
	}

	var productsInserted, productsSkipped int
	for _, spec := range products {
		tag, err := pool.Exec(ctx, `
			INSERT INTO products (seller_id, title, description, price_cents, currency, status)
			SELECT $1, $2, $3, $4, 'eur', 'available'
			WHERE NOT EXISTS (
				SELECT 1 FROM products WHERE seller_id = $1 AND title = $2
			)`,
			sellerID, spec.title, spec.description, spec.priceCents,
		)
		if err != nil {
			log.Fatalf("insert product %q: %v", spec.title, err)
		}
		if tag.RowsAffected() == 0 {
			productsSkipped++
		} else {
			productsInserted++
		}
	}

	_, err = pool.Exec(ctx, `
		UPDATE user_limits ul SET current_products = (
			SELECT COUNT(*) FROM products p WHERE p.seller_id = ul.user_id AND p.status = 'available'
		) WHERE ul.user_id = $1`,
		sellerID,
	)
	if err != nil {
		log.Fatalf("sync seller counters: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Invitation codes: %d inserted (%d already existed)\n", codesInserted, codesSkipped)
	fmt.Printf("  Seller:           seller@bridgezone.test / seed-password\n")
	fmt.Printf("  Seller ID:        %s\n", sellerID)
	fmt.Printf("  Products:         %d inserted (%d already existed)\n", productsInserted, productsSkipped)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Redeem the demo invitation (enterprise access, no verification):")
	fmt.Println()
	fmt.Println("    curl -s -X POST http://localhost:8080/auth/invitation \\")
	fmt.Println("      -H 'Content-Type: application/json' \\")
	fmt.Println("      -d '{\"code\":\"ASTERO1\"}'")
	fmt.Println("    # → {\"token\":\"eyJ...\",\"user\":{...}}")
	fmt.Println()
	fmt.Println("  Browse the seeded listings:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/products")
	fmt.Println()
	fmt.Println("  Sign in as the seller and check plan limits:")
	fmt.Println()
	fmt.Println("    curl -s -X POST http://localhost:8080/auth/signin \\")
	fmt.Println("      -H 'Content-Type: application/json' \\")
	fmt.Println("      -d '{\"email\":\"seller@bridgezone.test\",\"password\":\"seed-password\"}'")
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Println("    curl -s http://localhost:8080/me/limits -H \"Authorization: Bearer $JWT\"")
}
