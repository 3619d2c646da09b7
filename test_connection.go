package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// Schema tables the API expects. Missing ones mean migrations have not
// been applied yet.
var expectedTables = []string{
	"account",
	"api_key",
	"route",
	"usage_log",
	"quota_usage",
	"transport_mode_profile",
}

// Quick connectivity probe for a fresh environment.
// Run with: go run test_connection.go
func main() {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			envOr("DB_HOST", "localhost"),
			envOr("DB_PORT", "5432"),
			envOr("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			envOr("DB_NAME", "routeweave"),
			envOr("DB_SSLMODE", "disable"),
		)
	}

	fmt.Println("🔗 Testing database connection...")

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("❌ Failed to create connection: %v\n", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("❌ Failed to ping database: %v\n", err)
	}

	fmt.Println("✅ Connection successful!")

	var pgVersion string
	if err := db.QueryRow("SELECT version()").Scan(&pgVersion); err != nil {
		log.Printf("⚠️  Could not get PostgreSQL version: %v\n", err)
	} else {
		fmt.Printf("\n📊 PostgreSQL Version:\n   %s\n", pgVersion)
	}

	fmt.Println("\n📋 Checking schema...")
	missing := 0
	for _, table := range expectedTables {
		var count int
		err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			fmt.Printf("   ❌ %-24s missing\n", table)
			missing++
			continue
		}
		fmt.Printf("   ✅ %-24s %d rows\n", table, count)
	}

	if missing > 0 {
		fmt.Printf("\n⚠️  %d table(s) missing - migrations need to be run\n", missing)
		return
	}

	var from, to string
	var segments int
	err = db.QueryRow(`
		SELECT COALESCE(from_place->>'name', ''),
		       COALESCE(to_place->>'name', ''),
		       jsonb_array_length(segments)
		FROM route
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&from, &to, &segments)
	switch {
	case err == sql.ErrNoRows:
		fmt.Println("\n🗺️  No routes stored yet")
	case err != nil:
		log.Printf("⚠️  Could not read latest route: %v\n", err)
	default:
		fmt.Printf("\n🗺️  Latest route: %s → %s (%d segments)\n", from, to, segments)
	}

	fmt.Println("\n✅ Connection test completed successfully!")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
