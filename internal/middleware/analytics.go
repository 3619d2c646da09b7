package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// RequestLog is one usage_log row.
type RequestLog struct {
	AccountID      string
	APIKeyID       string
	Endpoint       string
	Method         string
	ResponseTimeMs int
	ResponseStatus int
	LegCount       int
	SegmentCount   int
	WarningCount   int
	CacheHit       bool
	IPAddress      string
	UserAgent      string
	Timestamp      time.Time
}

// MergeStats carries per-request merge numbers from the handler to the
// analytics middleware via locals.
type MergeStats struct {
	Legs     int
	Segments int
	Warnings int
}

// AnalyticsMiddleware records every authenticated request for usage
// reporting and billing. The database writes happen off the request
// goroutine.
func AnalyticsMiddleware(db *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		account, ok := c.Locals("account").(*AccountContext)
		if !ok {
			// Anonymous traffic is not billed
			return err
		}

		cacheHit, _ := c.Locals("cache_hit").(bool)
		stats, _ := c.Locals("merge_stats").(MergeStats)

		go logRequest(db, &RequestLog{
			AccountID:      account.AccountID,
			APIKeyID:       account.APIKeyID,
			Endpoint:       c.Path(),
			Method:         c.Method(),
			ResponseTimeMs: int(elapsed.Milliseconds()),
			ResponseStatus: c.Response().StatusCode(),
			LegCount:       stats.Legs,
			SegmentCount:   stats.Segments,
			WarningCount:   stats.Warnings,
			CacheHit:       cacheHit,
			IPAddress:      c.IP(),
			UserAgent:      c.Get("User-Agent"),
			Timestamp:      time.Now(),
		})

		c.Set("X-Response-Time", elapsed.String())
		c.Set("X-Cache-Hit", boolToString(cacheHit))

		return err
	}
}

// logRequest writes a usage_log row and bumps the daily quota counter.
func logRequest(db *pgxpool.Pool, reqLog *RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := db.Exec(ctx, `
		INSERT INTO usage_log (
			account_id, api_key_id, endpoint, method,
			response_time_ms, response_status,
			leg_count, segment_count, warning_count,
			cache_hit, ip_address, user_agent, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		reqLog.AccountID,
		reqLog.APIKeyID,
		reqLog.Endpoint,
		reqLog.Method,
		reqLog.ResponseTimeMs,
		reqLog.ResponseStatus,
		reqLog.LegCount,
		reqLog.SegmentCount,
		reqLog.WarningCount,
		reqLog.CacheHit,
		reqLog.IPAddress,
		reqLog.UserAgent,
		reqLog.Timestamp,
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to log request")
	}

	updateQuotaUsage(db, reqLog.AccountID, reqLog.ResponseStatus >= 200 && reqLog.ResponseStatus < 300)
}

// updateQuotaUsage upserts the daily counter row for the account.
func updateQuotaUsage(db *pgxpool.Pool, accountID string, success bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	successCount, failCount := 0, 1
	if success {
		successCount, failCount = 1, 0
	}

	_, err := db.Exec(ctx, `
		INSERT INTO quota_usage (
			account_id, period_type, period_start, period_end,
			requests_count, successful_requests, failed_requests
		)
		VALUES ($1, 'daily', $2, $2, 1, $3, $4)
		ON CONFLICT (account_id, period_type, period_start)
		DO UPDATE SET
			requests_count = quota_usage.requests_count + 1,
			successful_requests = quota_usage.successful_requests + $3,
			failed_requests = quota_usage.failed_requests + $4,
			updated_at = NOW()
	`, accountID, time.Now().Format("2006-01-02"), successCount, failCount)
	if err != nil {
		log.Error().Err(err).Msg("Failed to update daily quota")
	}
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// GetAccountUsage aggregates an account's usage_log rows per day,
// newest first, together with totals over the whole window.
func GetAccountUsage(db *pgxpool.Pool, accountID string, startDate, endDate time.Time) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := db.Query(ctx, `
		SELECT
			DATE(timestamp) AS day,
			COUNT(*) AS total_requests,
			COUNT(*) FILTER (WHERE response_status >= 200 AND response_status < 300) AS successful,
			COUNT(*) FILTER (WHERE response_status >= 400) AS failed,
			AVG(response_time_ms) AS avg_response_ms,
			COUNT(*) FILTER (WHERE cache_hit) AS cache_hits,
			COALESCE(SUM(leg_count), 0) AS legs_merged,
			COALESCE(SUM(segment_count), 0) AS segments_produced,
			COALESCE(SUM(warning_count), 0) AS warnings_raised
		FROM usage_log
		WHERE account_id = $1
			AND timestamp >= $2
			AND timestamp <= $3
		GROUP BY DATE(timestamp)
		ORDER BY day DESC
	`, accountID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type dayRow struct {
		day         time.Time
		total       int64
		successful  int64
		failed      int64
		avgResponse float64
		cacheHits   int64
		legs        int64
		segments    int64
		warnings    int64
	}

	days := []map[string]interface{}{}
	var sums dayRow
	for rows.Next() {
		var r dayRow
		if err := rows.Scan(
			&r.day, &r.total, &r.successful, &r.failed, &r.avgResponse,
			&r.cacheHits, &r.legs, &r.segments, &r.warnings,
		); err != nil {
			return nil, err
		}

		days = append(days, map[string]interface{}{
			"date":              r.day.Format("2006-01-02"),
			"total_requests":    r.total,
			"successful":        r.successful,
			"failed":            r.failed,
			"avg_response_ms":   r.avgResponse,
			"cache_hits":        r.cacheHits,
			"cache_hit_rate":    percentage(r.cacheHits, r.total),
			"legs_merged":       r.legs,
			"segments_produced": r.segments,
			"warnings_raised":   r.warnings,
		})

		sums.total += r.total
		sums.successful += r.successful
		sums.failed += r.failed
		sums.cacheHits += r.cacheHits
		sums.warnings += r.warnings
		sums.avgResponse += r.avgResponse
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summary := map[string]interface{}{}
	if len(days) > 0 {
		summary = map[string]interface{}{
			"total_requests":     sums.total,
			"total_successful":   sums.successful,
			"total_failed":       sums.failed,
			"success_rate":       percentage(sums.successful, sums.total),
			"total_cache_hits":   sums.cacheHits,
			"overall_cache_rate": percentage(sums.cacheHits, sums.total),
			"total_warnings":     sums.warnings,
			"avg_response_ms":    sums.avgResponse / float64(len(days)),
			"days_analyzed":      len(days),
		}
	}

	return map[string]interface{}{
		"stats":   days,
		"summary": summary,
	}, nil
}

// percentage guards against empty windows.
func percentage(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
