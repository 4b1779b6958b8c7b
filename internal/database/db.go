package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// InsertMetricsBatch appends records in a single transaction: either the whole
// batch lands or none of it does. Assigned IDs are written back into records.
func (db *DB) InsertMetricsBatch(ctx context.Context, records []*MetricRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO metrics (
			timestamp, site_name, throughput_gbps, error_count,
			ber_errors, link_status, utilization, anomaly_score, forecast_gbps
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		err := stmt.QueryRowContext(ctx,
			record.Timestamp,
			record.SiteName,
			record.ThroughputGbps,
			record.ErrorCount,
			record.BERErrors,
			record.LinkStatus,
			record.Utilization,
			record.AnomalyScore,
			record.ForecastGbps,
		).Scan(&record.ID)
		if err != nil {
			return fmt.Errorf("failed to insert metric for %s: %w", record.SiteName, err)
		}
	}

	return tx.Commit()
}

// LatestMetrics returns the newest records across all sites, timestamp
// descending.
func (db *DB) LatestMetrics(ctx context.Context, limit int) ([]*MetricRecord, error) {
	query := `
		SELECT id, timestamp, site_name, throughput_gbps, error_count,
		       ber_errors, link_status, utilization, anomaly_score, forecast_gbps
		FROM metrics
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// SiteMetrics returns one site's records within the trailing window, timestamp
// descending.
func (db *DB) SiteMetrics(ctx context.Context, site string, hours int) ([]*MetricRecord, error) {
	startTime := time.Now().Unix() - int64(hours)*3600

	query := `
		SELECT id, timestamp, site_name, throughput_gbps, error_count,
		       ber_errors, link_status, utilization, anomaly_score, forecast_gbps
		FROM metrics
		WHERE site_name = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
	`

	rows, err := db.QueryContext(ctx, query, site, startTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Anomalies returns records at or above the score threshold within the
// trailing window, ordered by score then timestamp descending.
func (db *DB) Anomalies(ctx context.Context, threshold float64, hours int) ([]*MetricRecord, error) {
	startTime := time.Now().Unix() - int64(hours)*3600

	query := `
		SELECT id, timestamp, site_name, throughput_gbps, error_count,
		       ber_errors, link_status, utilization, anomaly_score, forecast_gbps
		FROM metrics
		WHERE anomaly_score >= $1 AND timestamp >= $2
		ORDER BY anomaly_score DESC, timestamp DESC
	`

	rows, err := db.QueryContext(ctx, query, threshold, startTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Sites returns the distinct sites seen within the trailing window with
// last-seen timestamp and record count, most recently seen first.
func (db *DB) Sites(ctx context.Context, hours int) ([]*SiteInfo, error) {
	startTime := time.Now().Unix() - int64(hours)*3600

	query := `
		SELECT site_name, MAX(timestamp) AS last_seen, COUNT(*) AS record_count
		FROM metrics
		WHERE timestamp >= $1
		GROUP BY site_name
		ORDER BY last_seen DESC
	`

	rows, err := db.QueryContext(ctx, query, startTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*SiteInfo
	for rows.Next() {
		var s SiteInfo
		if err := rows.Scan(&s.Name, &s.LastSeen, &s.RecordCount); err != nil {
			return nil, err
		}
		sites = append(sites, &s)
	}

	return sites, rows.Err()
}

// DeleteOlderThan removes records strictly older than the cutoff and returns
// how many were deleted. A record exactly at the cutoff survives. Safe to run
// concurrently with ingestion.
func (db *DB) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM metrics WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]*MetricRecord, error) {
	var records []*MetricRecord
	for rows.Next() {
		var r MetricRecord
		if err := rows.Scan(
			&r.ID,
			&r.Timestamp,
			&r.SiteName,
			&r.ThroughputGbps,
			&r.ErrorCount,
			&r.BERErrors,
			&r.LinkStatus,
			&r.Utilization,
			&r.AnomalyScore,
			&r.ForecastGbps,
		); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}
