// Package mongo implements the Store on MongoDB using the official
// driver. Leases and usage records live in separate collections with
// their own indexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/lease"
	"github.com/xraph/lease/id"
	"github.com/xraph/lease/meter"
	"github.com/xraph/lease/store"
	"github.com/xraph/lease/types"
	"github.com/xraph/lease/vm"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

const (
	leaseCollection = "lease_leases"
	usageCollection = "lease_usage_records"
)

// Store implements store.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// ownsClient is set when Open created the client, so Close
	// disconnects it. New leaves lifecycle with the caller.
	ownsClient bool
}

// Open connects to MongoDB at uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("lease/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("lease/mongo: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database), ownsClient: true}, nil
}

// New wraps an existing database handle.
func New(db *mongo.Database) *Store {
	return &Store{client: db.Client(), db: db}
}

func (s *Store) leases() *mongo.Collection { return s.db.Collection(leaseCollection) }
func (s *Store) usage() *mongo.Collection  { return s.db.Collection(usageCollection) }

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.leases().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("lease/mongo: create lease indexes: %w", err)
	}

	_, err = s.usage().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "lease_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("lease/mongo: create usage indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %w", lease.ErrStoreNotReady, err)
	}
	return nil
}

func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// leaseDoc is the wire representation of a lease. IDs and money are
// stored flat so filters and projections stay simple.
type leaseDoc struct {
	ID           string            `bson:"_id"`
	TenantID     string            `bson:"tenant_id"`
	Name         string            `bson:"name"`
	CPUCores     int64             `bson:"cpu_cores"`
	RAMMB        int64             `bson:"ram_mb"`
	StorageGB    int64             `bson:"storage_gb"`
	BandwidthGB  int64             `bson:"bandwidth_gb"`
	Status       string            `bson:"status"`
	RateAmount   int64             `bson:"rate_amount"`
	RateCurrency string            `bson:"rate_currency"`
	ContainerID  string            `bson:"container_id,omitempty"`
	IPAddress    string            `bson:"ip_address,omitempty"`
	StartedAt    *time.Time        `bson:"started_at,omitempty"`
	StoppedAt    *time.Time        `bson:"stopped_at,omitempty"`
	LastError    string            `bson:"last_error,omitempty"`
	Metadata     map[string]string `bson:"metadata,omitempty"`
	CreatedAt    time.Time         `bson:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at"`
}

func toLeaseDoc(l *vm.Lease) *leaseDoc {
	return &leaseDoc{
		ID:           l.ID.String(),
		TenantID:     l.TenantID,
		Name:         l.Name,
		CPUCores:     l.Resources.CPUCores,
		RAMMB:        l.Resources.RAMMB,
		StorageGB:    l.Resources.StorageGB,
		BandwidthGB:  l.Resources.BandwidthGB,
		Status:       string(l.Status),
		RateAmount:   l.HourlyRate.Amount,
		RateCurrency: l.HourlyRate.Currency,
		ContainerID:  l.ContainerID,
		IPAddress:    l.IPAddress,
		StartedAt:    l.StartedAt,
		StoppedAt:    l.StoppedAt,
		LastError:    l.LastError,
		Metadata:     l.Metadata,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

func (d *leaseDoc) toLease() (*vm.Lease, error) {
	leaseID, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("lease/mongo: parse lease id: %w", err)
	}
	l := &vm.Lease{
		Entity: types.Entity{
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		ID:       leaseID,
		TenantID: d.TenantID,
		Name:     d.Name,
		Resources: types.Resources{
			CPUCores:    d.CPUCores,
			RAMMB:       d.RAMMB,
			StorageGB:   d.StorageGB,
			BandwidthGB: d.BandwidthGB,
		},
		Status:      vm.Status(d.Status),
		HourlyRate:  types.Cost{Amount: d.RateAmount, Currency: d.RateCurrency},
		ContainerID: d.ContainerID,
		IPAddress:   d.IPAddress,
		StartedAt:   d.StartedAt,
		StoppedAt:   d.StoppedAt,
		LastError:   d.LastError,
		Metadata:    d.Metadata,
	}
	return l, nil
}

func (s *Store) CreateLease(ctx context.Context, l *vm.Lease) error {
	_, err := s.leases().InsertOne(ctx, toLeaseDoc(l))
	if mongo.IsDuplicateKeyError(err) {
		return lease.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("lease/mongo: create lease: %w", err)
	}
	return nil
}

func (s *Store) GetLease(ctx context.Context, leaseID id.LeaseID) (*vm.Lease, error) {
	var doc leaseDoc
	err := s.leases().FindOne(ctx, bson.M{"_id": leaseID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, lease.ErrLeaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lease/mongo: get lease: %w", err)
	}
	return doc.toLease()
}

func (s *Store) ListLeases(ctx context.Context, opts vm.ListOpts) ([]*vm.Lease, error) {
	filter := bson.M{}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.leases().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("lease/mongo: list leases: %w", err)
	}
	defer cur.Close(ctx)

	result := make([]*vm.Lease, 0)
	for cur.Next(ctx) {
		var doc leaseDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("lease/mongo: decode lease: %w", err)
		}
		l, err := doc.toLease()
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, cur.Err()
}

func (s *Store) UpdateLease(ctx context.Context, l *vm.Lease) error {
	res, err := s.leases().ReplaceOne(ctx, bson.M{"_id": l.ID.String()}, toLeaseDoc(l))
	if err != nil {
		return fmt.Errorf("lease/mongo: update lease: %w", err)
	}
	if res.MatchedCount == 0 {
		return lease.ErrLeaseNotFound
	}
	return nil
}

func (s *Store) DeleteLease(ctx context.Context, leaseID id.LeaseID) error {
	res, err := s.leases().DeleteOne(ctx, bson.M{"_id": leaseID.String()})
	if err != nil {
		return fmt.Errorf("lease/mongo: delete lease: %w", err)
	}
	if res.DeletedCount == 0 {
		return lease.ErrLeaseNotFound
	}
	return nil
}

func (s *Store) CountLeases(ctx context.Context, tenantID string) (int64, error) {
	count, err := s.leases().CountDocuments(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return 0, fmt.Errorf("lease/mongo: count leases: %w", err)
	}
	return count, nil
}

type usageDoc struct {
	ID              string    `bson:"_id"`
	LeaseID         string    `bson:"lease_id"`
	TenantID        string    `bson:"tenant_id"`
	CPUPercent      float64   `bson:"cpu_percent"`
	RAMUsedMB       float64   `bson:"ram_used_mb"`
	StorageUsedGB   float64   `bson:"storage_used_gb"`
	BandwidthUsedMB float64   `bson:"bandwidth_used_mb"`
	DurationMinutes int       `bson:"duration_minutes"`
	CostAmount      int64     `bson:"cost_amount"`
	CostCurrency    string    `bson:"cost_currency"`
	Timestamp       time.Time `bson:"timestamp"`
}

func (s *Store) InsertUsageRecords(ctx context.Context, records []*meter.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]any, 0, len(records))
	for _, r := range records {
		docs = append(docs, &usageDoc{
			ID:              r.ID.String(),
			LeaseID:         r.LeaseID.String(),
			TenantID:        r.TenantID,
			CPUPercent:      r.CPUPercent,
			RAMUsedMB:       r.RAMUsedMB,
			StorageUsedGB:   r.StorageUsedGB,
			BandwidthUsedMB: r.BandwidthUsedMB,
			DurationMinutes: r.DurationMinutes,
			CostAmount:      r.Cost.Amount,
			CostCurrency:    r.Cost.Currency,
			Timestamp:       r.Timestamp,
		})
	}

	if _, err := s.usage().InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("lease/mongo: insert usage records: %w", err)
	}
	return nil
}

func (s *Store) QueryUsage(ctx context.Context, leaseID id.LeaseID, opts meter.QueryOpts) ([]*meter.UsageRecord, error) {
	filter := bson.M{"lease_id": leaseID.String()}

	tsFilter := bson.M{}
	if !opts.Start.IsZero() {
		tsFilter["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		tsFilter["$lte"] = opts.End
	}
	if len(tsFilter) > 0 {
		filter["timestamp"] = tsFilter
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.usage().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("lease/mongo: query usage: %w", err)
	}
	defer cur.Close(ctx)

	result := make([]*meter.UsageRecord, 0)
	for cur.Next(ctx) {
		var doc usageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("lease/mongo: decode usage record: %w", err)
		}
		recID, err := id.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("lease/mongo: parse record id: %w", err)
		}
		lid, err := id.Parse(doc.LeaseID)
		if err != nil {
			return nil, fmt.Errorf("lease/mongo: parse lease id: %w", err)
		}
		result = append(result, &meter.UsageRecord{
			ID:              recID,
			LeaseID:         lid,
			TenantID:        doc.TenantID,
			CPUPercent:      doc.CPUPercent,
			RAMUsedMB:       doc.RAMUsedMB,
			StorageUsedGB:   doc.StorageUsedGB,
			BandwidthUsedMB: doc.BandwidthUsedMB,
			DurationMinutes: doc.DurationMinutes,
			Cost:            types.Cost{Amount: doc.CostAmount, Currency: doc.CostCurrency},
			Timestamp:       doc.Timestamp,
		})
	}
	return result, cur.Err()
}

func (s *Store) DeleteUsage(ctx context.Context, leaseID id.LeaseID) (int64, error) {
	res, err := s.usage().DeleteMany(ctx, bson.M{"lease_id": leaseID.String()})
	if err != nil {
		return 0, fmt.Errorf("lease/mongo: delete usage: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) PurgeUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.usage().DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("lease/mongo: purge usage: %w", err)
	}
	return res.DeletedCount, nil
}
