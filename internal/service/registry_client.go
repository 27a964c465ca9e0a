package service

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/redisclient"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

// RegistryClient reads vehicle and customer records from the fleet and
// customer registry. Lookups are cached briefly in redis; they are read-only
// and do not affect financial invariants, so short staleness is acceptable.
type RegistryClient struct {
	store    *store.Store
	redis    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRegistryClient creates a new registry client. redis may be nil, in
// which case every lookup goes to the database.
func NewRegistryClient(store *store.Store, redis *redisclient.Client, cacheTTL time.Duration) *RegistryClient {
	return &RegistryClient{
		store:    store,
		redis:    redis,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

func vehicleCacheKey(id int64) string {
	return fmt.Sprintf("registry:vehicle:%d", id)
}

func customerCacheKey(id int64) string {
	return fmt.Sprintf("registry:customer:%d", id)
}

// GetVehicle retrieves a vehicle, cache first
func (rc *RegistryClient) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	ctx, span := util.StartSpan(ctx, "RegistryClient.GetVehicle")
	defer span.End()

	if rc.redis != nil {
		var vehicle models.Vehicle
		hit, err := rc.redis.GetJSON(ctx, vehicleCacheKey(id), &vehicle)
		if err != nil {
			rc.logger.Warn("Vehicle cache read failed, falling back to DB",
				zap.Int64("vehicle_id", id), zap.Error(err))
		} else if hit {
			return &vehicle, nil
		}
	}

	vehicle, err := rc.store.GetVehicleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if rc.redis != nil {
		if err := rc.redis.SetJSON(ctx, vehicleCacheKey(id), vehicle, rc.cacheTTL); err != nil {
			rc.logger.Warn("Failed to cache vehicle", zap.Int64("vehicle_id", id), zap.Error(err))
		}
	}

	return vehicle, nil
}

// GetCustomer retrieves a customer, cache first
func (rc *RegistryClient) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "RegistryClient.GetCustomer")
	defer span.End()

	if rc.redis != nil {
		var customer models.Customer
		hit, err := rc.redis.GetJSON(ctx, customerCacheKey(id), &customer)
		if err != nil {
			rc.logger.Warn("Customer cache read failed, falling back to DB",
				zap.Int64("customer_id", id), zap.Error(err))
		} else if hit {
			return &customer, nil
		}
	}

	customer, err := rc.store.GetCustomerByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if rc.redis != nil {
		if err := rc.redis.SetJSON(ctx, customerCacheKey(id), customer, rc.cacheTTL); err != nil {
			rc.logger.Warn("Failed to cache customer", zap.Int64("customer_id", id), zap.Error(err))
		}
	}

	return customer, nil
}

// InvalidateVehicle drops a vehicle's cache entry after a status write
func (rc *RegistryClient) InvalidateVehicle(ctx context.Context, id int64) {
	if rc.redis == nil {
		return
	}
	if err := rc.redis.Invalidate(ctx, vehicleCacheKey(id)); err != nil {
		rc.logger.Warn("Failed to invalidate vehicle cache",
			zap.Int64("vehicle_id", id), zap.Error(err))
	}
}
