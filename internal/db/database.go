package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"

	"obd-diagnostics/internal/models"
	"obd-diagnostics/internal/refranges"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Database wraps the SQLite connection holding reference ranges
type Database struct {
	conn *sql.DB
}

// ProfileInfo describes one stored (model, fuel) profile
type ProfileInfo struct {
	models.Vehicle
	Parameters int       `json:"parameters"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RangeQuery filters stored references. Empty fields match everything.
type RangeQuery struct {
	Model     string
	Fuel      string
	Parameter string
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	// Enable WAL mode via connection string
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite works best with single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}

	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates tables and indexes
func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		model TEXT NOT NULL,
		fuel TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
		PRIMARY KEY (model, fuel)
	);

	CREATE TABLE IF NOT EXISTS reference_ranges (
		model TEXT NOT NULL,
		fuel TEXT NOT NULL,
		parameter TEXT NOT NULL,
		has_range INTEGER NOT NULL DEFAULT 0,
		min_value REAL,
		max_value REAL,
		allowed TEXT,
		scalar REAL,
		PRIMARY KEY (model, fuel, parameter),
		FOREIGN KEY (model, fuel) REFERENCES profiles(model, fuel) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_ranges_parameter ON reference_ranges(parameter);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// ImportTable upserts every reference of a table in one transaction and
// returns the number of references written.
func (db *Database) ImportTable(t *refranges.Table) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	profStmt, err := tx.Prepare(`
		INSERT INTO profiles (model, fuel, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(model, fuel) DO UPDATE SET updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, err
	}
	defer profStmt.Close()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO reference_ranges
		(model, fuel, parameter, has_range, min_value, max_value, allowed, scalar)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, v := range t.Vehicles() {
		if _, err := profStmt.Exec(v.Model, v.Fuel, now); err != nil {
			return 0, fmt.Errorf("profile %s/%s: %w", v.Model, v.Fuel, err)
		}
	}

	var count int64
	var execErr error
	t.Each(func(v models.Vehicle, key string, ref refranges.Reference) {
		if execErr != nil {
			return
		}
		args, err := referenceArgs(ref)
		if err != nil {
			execErr = fmt.Errorf("%s/%s/%s: %w", v.Model, v.Fuel, key, err)
			return
		}
		if _, err := stmt.Exec(append([]interface{}{v.Model, v.Fuel, key}, args...)...); err != nil {
			execErr = fmt.Errorf("%s/%s/%s: %w", v.Model, v.Fuel, key, err)
			return
		}
		count++
	})
	if execErr != nil {
		return count, execErr
	}

	return count, tx.Commit()
}

func referenceArgs(ref refranges.Reference) ([]interface{}, error) {
	var (
		hasRange         int
		minV, maxV, scal sql.NullFloat64
		allowed          sql.NullString
	)
	if r := ref.Range; r != nil {
		hasRange = 1
		if r.Min != nil {
			minV = sql.NullFloat64{Float64: *r.Min, Valid: true}
		}
		if r.Max != nil {
			maxV = sql.NullFloat64{Float64: *r.Max, Valid: true}
		}
		if len(r.Allowed) > 0 {
			bs, err := json.Marshal(r.Allowed)
			if err != nil {
				return nil, err
			}
			allowed = sql.NullString{String: string(bs), Valid: true}
		}
	}
	if ref.Scalar != nil {
		scal = sql.NullFloat64{Float64: *ref.Scalar, Valid: true}
	}
	return []interface{}{hasRange, minV, maxV, allowed, scal}, nil
}

// LoadTable reads the references matching q into a table
func (db *Database) LoadTable(q RangeQuery) (*refranges.Table, error) {
	var conditions []string
	var args []interface{}

	baseQuery := `
		SELECT model, fuel, parameter, has_range, min_value, max_value, allowed, scalar
		FROM reference_ranges
	`

	if q.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, refranges.NormalizeName(q.Model))
	}
	if q.Fuel != "" {
		conditions = append(conditions, "fuel = ?")
		args = append(args, refranges.NormalizeName(q.Fuel))
	}
	if q.Parameter != "" {
		conditions = append(conditions, "parameter = ?")
		args = append(args, models.CanonicalKey(q.Parameter))
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY model, fuel, parameter"

	rows, err := db.conn.Query(baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := refranges.New()
	for rows.Next() {
		var (
			model, fuel, param string
			hasRange           int
			minV, maxV, scal   sql.NullFloat64
			allowed            sql.NullString
		)
		if err := rows.Scan(&model, &fuel, &param, &hasRange, &minV, &maxV, &allowed, &scal); err != nil {
			return nil, err
		}
		var ref refranges.Reference
		if hasRange == 1 {
			ref.Range = &models.IdealRange{}
			if minV.Valid {
				ref.Range.Min = &minV.Float64
			}
			if maxV.Valid {
				ref.Range.Max = &maxV.Float64
			}
			if allowed.Valid {
				if err := json.Unmarshal([]byte(allowed.String), &ref.Range.Allowed); err != nil {
					return nil, fmt.Errorf("%s/%s/%s: bad allowed set: %w", model, fuel, param, err)
				}
			}
		}
		if scal.Valid {
			v := scal.Float64
			ref.Scalar = &v
		}
		t.Set(model, fuel, param, ref)
	}

	return t, rows.Err()
}

// RangeTable loads the table for one vehicle
func (db *Database) RangeTable(v models.Vehicle) (*refranges.Table, error) {
	return db.LoadTable(RangeQuery{Model: v.Model, Fuel: v.Fuel})
}

// ListProfiles returns the stored profiles with their reference counts
func (db *Database) ListProfiles() ([]ProfileInfo, error) {
	query := `
		SELECT p.model, p.fuel, p.updated_at, COUNT(r.parameter)
		FROM profiles p
		LEFT JOIN reference_ranges r ON r.model = p.model AND r.fuel = p.fuel
		GROUP BY p.model, p.fuel
		ORDER BY p.model, p.fuel
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []ProfileInfo
	for rows.Next() {
		var p ProfileInfo
		var updated int64
		if err := rows.Scan(&p.Model, &p.Fuel, &updated, &p.Parameters); err != nil {
			return nil, err
		}
		p.UpdatedAt = time.Unix(updated, 0).UTC()
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Vehicles lists the stored (model, fuel) pairs
func (db *Database) Vehicles() ([]models.Vehicle, error) {
	profiles, err := db.ListProfiles()
	if err != nil {
		return nil, err
	}
	out := make([]models.Vehicle, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.Vehicle)
	}
	return out, nil
}

// DeleteProfile removes a profile and its references
func (db *Database) DeleteProfile(v models.Vehicle) (int64, error) {
	model, fuel := refranges.NormalizeName(v.Model), refranges.NormalizeName(v.Fuel)
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM reference_ranges WHERE model = ? AND fuel = ?`, model, fuel)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if _, err := tx.Exec(`DELETE FROM profiles WHERE model = ? AND fuel = ?`, model, fuel); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// GetStats returns database statistics
func (db *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var profiles int64
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&profiles); err != nil {
		return nil, err
	}
	stats["profiles"] = profiles

	var references int64
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM reference_ranges").Scan(&references); err != nil {
		return nil, err
	}
	stats["reference_ranges"] = references

	var scalars int64
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM reference_ranges WHERE scalar IS NOT NULL").Scan(&scalars); err != nil {
		return nil, err
	}
	stats["scalar_thresholds"] = scalars

	return stats, nil
}
