package health

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dependency is a backing service probed by name. Only critical dependencies
// decide readiness; the rest can fail and leave the API degraded.
type Dependency struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

func (d Dependency) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: d.Name, Critical: d.Critical, Healthy: true}
	if err := d.Ping(ctx); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

// Database probes the SQL pool. A nil db yields no checker.
func Database(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return Dependency{Name: "db", Critical: true, Ping: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}
}

// Redis backs the shared rate limits and caches. It is only critical when the
// limiters fail closed, since otherwise requests still flow without it.
func Redis(client redis.UniversalClient, critical bool) Checker {
	if client == nil {
		return nil
	}
	return Dependency{Name: "redis", Critical: critical, Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// Pinger is satisfied by the media object store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func MediaStorage(store Pinger) Checker {
	if store == nil {
		return nil
	}
	return Dependency{Name: "media_storage", Critical: true, Ping: store.Ping}
}
