package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountContext carries the authenticated account through a request.
type AccountContext struct {
	AccountID string
	APIKeyID  string
	Plan      string
	Scopes    []string
	Email     string
	Name      string
}

// API keys look like rw_<env>_<64 hex chars>_<4 hex checksum chars>.
// The checksum is the first two bytes of the SHA-256 of the secret, so
// mistyped or truncated keys are rejected without a database round trip.
func wellFormedKey(key string) bool {
	parts := strings.Split(key, "_")
	if len(parts) != 4 || parts[0] != "rw" {
		return false
	}
	if parts[1] != "test" && parts[1] != "live" {
		return false
	}

	secret, checksum := parts[2], parts[3]
	if len(secret) != 64 || len(checksum) != 4 {
		return false
	}

	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:2]) == checksum
}

// AuthMiddleware resolves the bearer API key to an account and stores
// the account context plus its rate limits in the request locals. Only
// the SHA-256 of the full key is ever compared against the database.
func AuthMiddleware(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(401).JSON(fiber.Map{
				"error":   "missing_api_key",
				"message": "API key is required. Use Authorization: Bearer YOUR_API_KEY",
				"docs":    "https://docs.routeweave.io/authentication",
			})
		}

		scheme, key, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_auth_format",
				"message": "Authorization header must be in format: Bearer YOUR_API_KEY",
				"example": "Authorization: Bearer rw_live_abc123...",
			})
		}

		apiKey := strings.TrimSpace(key)
		if !wellFormedKey(apiKey) {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_api_key_format",
				"message": "API keys look like rw_live_... and end in a checksum",
			})
		}

		sum := sha256.Sum256([]byte(apiKey))
		keyHash := hex.EncodeToString(sum[:])

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var (
			apiKeyID           string
			accountID          string
			scopes             []string
			plan               string
			status             string
			email              string
			name               string
			rateLimitPerSecond int
			rateLimitPerDay    int
		)

		err := db.QueryRow(ctx, `
			SELECT
				ak.id,
				ak.account_id,
				ak.scopes,
				a.plan,
				a.status,
				a.email,
				a.name,
				a.rate_limit_per_second,
				a.rate_limit_per_day
			FROM api_key ak
			JOIN account a ON a.id = ak.account_id
			WHERE ak.key_hash = $1
				AND ak.is_active = true
				AND a.status = 'active'
				AND (ak.expires_at IS NULL OR ak.expires_at > NOW())
		`, keyHash).Scan(
			&apiKeyID,
			&accountID,
			&scopes,
			&plan,
			&status,
			&email,
			&name,
			&rateLimitPerSecond,
			&rateLimitPerDay,
		)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_api_key",
				"message": "The provided API key is invalid, expired, or has been revoked",
			})
		}

		go touchKey(db, apiKeyID)

		c.Locals("account", &AccountContext{
			AccountID: accountID,
			APIKeyID:  apiKeyID,
			Plan:      plan,
			Scopes:    scopes,
			Email:     email,
			Name:      name,
		})
		c.Locals("rate_limits", map[string]int{
			"per_second": rateLimitPerSecond,
			"per_day":    rateLimitPerDay,
		})

		return c.Next()
	}
}

// touchKey records when a key and its account were last seen. Fire and
// forget; auth latency must not include this write.
func touchKey(db *pgxpool.Pool, apiKeyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = db.Exec(ctx, `
		WITH touched AS (
			UPDATE api_key
			SET last_used_at = NOW()
			WHERE id = $1
			RETURNING account_id
		)
		UPDATE account
		SET last_active_at = NOW()
		WHERE id IN (SELECT account_id FROM touched)
	`, apiKeyID)
}

// AccountFromCtx returns the authenticated account, or nil when the
// request was not authenticated.
func AccountFromCtx(c *fiber.Ctx) *AccountContext {
	account, _ := c.Locals("account").(*AccountContext)
	return account
}

// RequireScope rejects requests whose key does not carry the scope.
func RequireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		account, ok := c.Locals("account").(*AccountContext)
		if !ok {
			return c.Status(401).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Authentication required",
			})
		}

		if !hasScope(account.Scopes, scope) {
			return c.Status(403).JSON(fiber.Map{
				"error":          "insufficient_permissions",
				"message":        "Your API key does not have the required permissions",
				"required_scope": scope,
			})
		}

		return c.Next()
	}
}

// hasScope honours the "*" wildcard.
func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want || s == "*" {
			return true
		}
	}
	return false
}

// OptionalAuth validates credentials when present but lets anonymous
// requests through. Used on read endpoints that serve public data.
func OptionalAuth(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return c.Next()
		}
		return AuthMiddleware(db)(c)
	}
}
