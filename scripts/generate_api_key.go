package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
)

// Generates an API key of the form rw_<env>_<64 hex>_<4 hex checksum>
// and prints the SQL that registers its hash. The raw key is shown once
// and never stored.
//
// Usage: go run scripts/generate_api_key.go -env live -name "CI key"

type apiKey struct {
	Env    string
	Raw    string
	Hash   string
	Prefix string
}

func main() {
	env := flag.String("env", "test", "Environment: test or live")
	name := flag.String("name", "Default key", "Display name stored next to the key")
	scopes := flag.String("scopes", "routes:merge,routes:read", "Comma separated scopes")
	flag.Parse()

	if *env != "test" && *env != "live" {
		fmt.Println("Error: env must be 'test' or 'live'")
		os.Exit(1)
	}

	key := newAPIKey(*env)

	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Println("🔑 API Key Generated")
	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Printf("Environment:  %s\n", key.Env)
	fmt.Printf("Name:         %s\n", *name)
	fmt.Printf("Scopes:       %s\n", *scopes)
	fmt.Printf("\nAPI Key (show ONLY ONCE):\n%s\n", key.Raw)
	fmt.Printf("\nHash (store in database):\n%s\n", key.Hash)
	fmt.Printf("\nPrefix (for display):\n%s\n", key.Prefix)
	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Println("\n⚠️  Save the API key now! You won't be able to see it again.")
	fmt.Println("\nTo insert into database:")
	fmt.Printf("INSERT INTO api_key (account_id, key_hash, key_prefix, name, scopes)\n")
	fmt.Printf("VALUES ('ACCOUNT_ID', '%s', '%s', '%s', %s);\n", key.Hash, key.Prefix, *name, sqlScopes(*scopes))
	fmt.Println("═══════════════════════════════════════════════════")
}

// newAPIKey draws a 32 byte secret and assembles the key. The checksum
// is the first two bytes of the SHA-256 of the hex secret; the auth
// middleware verifies it before touching the database.
func newAPIKey(env string) apiKey {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}
	secretHex := hex.EncodeToString(secret)

	check := sha256.Sum256([]byte(secretHex))
	raw := fmt.Sprintf("rw_%s_%s_%s", env, secretHex, hex.EncodeToString(check[:2]))

	hash := sha256.Sum256([]byte(raw))

	return apiKey{
		Env:    env,
		Raw:    raw,
		Hash:   hex.EncodeToString(hash[:]),
		Prefix: fmt.Sprintf("rw_%s_%s...", env, secretHex[:8]),
	}
}

// sqlScopes renders the scope list as a Postgres array literal.
func sqlScopes(list string) string {
	quoted := []string{}
	for _, scope := range strings.Split(list, ",") {
		scope = strings.TrimSpace(scope)
		if scope != "" {
			quoted = append(quoted, "'"+scope+"'")
		}
	}
	return "ARRAY[" + strings.Join(quoted, ", ") + "]"
}
