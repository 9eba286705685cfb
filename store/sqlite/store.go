// Package sqlite implements the Store on an embedded SQLite database via
// the cgo-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xraph/lease"
	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/store"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// timeLayout keeps timestamps lexically sortable in TEXT columns. The
// fractional part is fixed-width: RFC3339Nano trims trailing zeros,
// which breaks string comparison between timestamps of differing
// precision.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Use ":memory:" for an
// ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("lease/sqlite: open %s: %w", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("lease/sqlite: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", lease.ErrStoreNotReady, err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateLease(ctx context.Context, l *vm.Lease) error {
	meta, err := json.Marshal(l.Metadata)
	if err != nil {
		return fmt.Errorf("lease/sqlite: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO lease_leases (
    id, tenant_id, name, cpu_cores, ram_mb, storage_gb, bandwidth_gb,
    status, rate_amount, rate_currency, container_id, ip_address,
    started_at, stopped_at, last_error, metadata, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.TenantID, l.Name,
		l.Resources.CPUCores, l.Resources.RAMMB, l.Resources.StorageGB, l.Resources.BandwidthGB,
		string(l.Status), l.HourlyRate.Amount, l.HourlyRate.Currency,
		l.ContainerID, l.IPAddress,
		nullTime(l.StartedAt), nullTime(l.StoppedAt), l.LastError, string(meta),
		l.CreatedAt.UTC().Format(timeLayout), l.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("lease/sqlite: create lease: %w", err)
	}
	return nil
}

const leaseColumns = `id, tenant_id, name, cpu_cores, ram_mb, storage_gb, bandwidth_gb,
    status, rate_amount, rate_currency, container_id, ip_address,
    started_at, stopped_at, last_error, metadata, created_at, updated_at`

func (s *Store) GetLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leaseColumns+` FROM lease_leases WHERE id = ?`, leaseID.String())

	l, err := scanLease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lease.ErrLeaseNotFound
	}
	return l, err
}

func (s *Store) ListLeases(ctx context.Context, opts vm.ListOpts) ([]*vm.Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM lease_leases WHERE 1=1`
	args := make([]any, 0, 4)

	if opts.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, opts.TenantID)
	}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lease/sqlite: list leases: %w", err)
	}
	defer rows.Close()

	result := make([]*vm.Lease, 0)
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) UpdateLease(ctx context.Context, l *vm.Lease) error {
	meta, err := json.Marshal(l.Metadata)
	if err != nil {
		return fmt.Errorf("lease/sqlite: marshal metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE lease_leases SET
    tenant_id = ?, name = ?, cpu_cores = ?, ram_mb = ?, storage_gb = ?, bandwidth_gb = ?,
    status = ?, rate_amount = ?, rate_currency = ?, container_id = ?, ip_address = ?,
    started_at = ?, stopped_at = ?, last_error = ?, metadata = ?, updated_at = ?
WHERE id = ?`,
		l.TenantID, l.Name,
		l.Resources.CPUCores, l.Resources.RAMMB, l.Resources.StorageGB, l.Resources.BandwidthGB,
		string(l.Status), l.HourlyRate.Amount, l.HourlyRate.Currency,
		l.ContainerID, l.IPAddress,
		nullTime(l.StartedAt), nullTime(l.StoppedAt), l.LastError, string(meta),
		l.UpdatedAt.UTC().Format(timeLayout),
		l.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("lease/sqlite: update lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lease.ErrLeaseNotFound
	}
	return nil
}

func (s *Store) DeleteLease(ctx context.Context, leaseID id.LeaseID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lease_leases WHERE id = ?`, leaseID.String())
	if err != nil {
		return fmt.Errorf("lease/sqlite: delete lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lease.ErrLeaseNotFound
	}
	return nil
}

func (s *Store) CountLeases(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lease_leases WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("lease/sqlite: count leases: %w", err)
	}
	return count, nil
}

func (s *Store) InsertUsageRecords(ctx context.Context, records []*meter.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lease/sqlite: begin insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
INSERT INTO lease_usage_records (
    id, lease_id, tenant_id, cpu_percent, ram_used_mb, storage_used_gb,
    bandwidth_used_mb, duration_minutes, cost_amount, cost_currency, timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID.String(), r.LeaseID.String(), r.TenantID,
			r.CPUPercent, r.RAMUsedMB, r.StorageUsedGB, r.BandwidthUsedMB,
			r.DurationMinutes, r.Cost.Amount, r.Cost.Currency,
			r.Timestamp.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("lease/sqlite: insert usage record: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) QueryUsage(ctx context.Context, leaseID id.LeaseID, opts meter.QueryOpts) ([]*meter.UsageRecord, error) {
	query := `
SELECT id, lease_id, tenant_id, cpu_percent, ram_used_mb, storage_used_gb,
       bandwidth_used_mb, duration_minutes, cost_amount, cost_currency, timestamp
FROM lease_usage_records WHERE lease_id = ?`
	args := []any{leaseID.String()}

	if !opts.Start.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, opts.Start.UTC().Format(timeLayout))
	}
	if !opts.End.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, opts.End.UTC().Format(timeLayout))
	}
	query += ` ORDER BY timestamp`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lease/sqlite: query usage: %w", err)
	}
	defer rows.Close()

	result := make([]*meter.UsageRecord, 0)
	for rows.Next() {
		var (
			r            meter.UsageRecord
			rid, lid, ts string
			amount       int64
			currency     string
		)
		err := rows.Scan(&rid, &lid, &r.TenantID, &r.CPUPercent, &r.RAMUsedMB,
			&r.StorageUsedGB, &r.BandwidthUsedMB, &r.DurationMinutes,
			&amount, &currency, &ts)
		if err != nil {
			return nil, fmt.Errorf("lease/sqlite: scan usage record: %w", err)
		}
		if r.ID, err = id.Parse(rid); err != nil {
			return nil, err
		}
		if r.LeaseID, err = id.Parse(lid); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("lease/sqlite: parse timestamp: %w", err)
		}
		r.Cost = types.Cost{Amount: amount, Currency: currency}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (s *Store) DeleteUsage(ctx context.Context, leaseID id.LeaseID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lease_usage_records WHERE lease_id = ?`, leaseID.String())
	if err != nil {
		return 0, fmt.Errorf("lease/sqlite: delete usage: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lease_usage_records WHERE timestamp < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("lease/sqlite: purge usage: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLease(row rowScanner) (*vm.Lease, error) {
	var (
		l                    vm.Lease
		lid, status          string
		rateAmount           int64
		rateCurrency         string
		startedAt, stoppedAt sql.NullString
		meta                 string
		createdAt, updatedAt string
	)

	err := row.Scan(&lid, &l.TenantID, &l.Name,
		&l.Resources.CPUCores, &l.Resources.RAMMB, &l.Resources.StorageGB, &l.Resources.BandwidthGB,
		&status, &rateAmount, &rateCurrency, &l.ContainerID, &l.IPAddress,
		&startedAt, &stoppedAt, &l.LastError, &meta, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if l.ID, err = id.Parse(lid); err != nil {
		return nil, err
	}
	l.Status = vm.Status(status)
	l.HourlyRate = types.Cost{Amount: rateAmount, Currency: rateCurrency}

	if l.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if l.StoppedAt, err = parseNullTime(stoppedAt); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("lease/sqlite: parse created_at: %w", err)
	}
	if l.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("lease/sqlite: parse updated_at: %w", err)
	}
	if meta != "" && meta != "{}" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &l.Metadata); err != nil {
			return nil, fmt.Errorf("lease/sqlite: unmarshal metadata: %w", err)
		}
	}

	return &l, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil //nolint:nilnil // NULL column maps to no timestamp
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("lease/sqlite: parse timestamp: %w", err)
	}
	return &t, nil
}
