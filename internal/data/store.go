package data

import (
	"context"
	"fmt"

	"movieratings/internal/biz"
	"movieratings/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// Store bundles the repositories of one backend.
type Store struct {
	Movies  biz.MovieRepo
	Users   biz.UserRepo
	Ratings biz.RatingRepo
	Tx      biz.Transaction
}

// NewStore builds the backend selected by c.Driver.
func NewStore(c *conf.Data, rdb *redis.Client, logger log.Logger) (*Store, func(), error) {
	switch c.Driver {
	case conf.DriverMemory:
		m := NewMemoryStore()
		return &Store{Movies: m, Users: m, Ratings: m, Tx: m}, func() {}, nil

	case conf.DriverSQLite, conf.DriverPostgres:
		d, cleanup, err := NewData(c, rdb, logger)
		if err != nil {
			return nil, nil, err
		}
		if c.Database.AutoMigrate {
			if err := d.Migrate(context.Background()); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		return NewRelationalStore(d, logger), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown data driver %q", c.Driver)
	}
}

// NewRelationalStore wires the gorm repositories over d.
func NewRelationalStore(d *Data, logger log.Logger) *Store {
	return &Store{
		Movies:  NewMovieRepo(d, logger),
		Users:   NewUserRepo(d, logger),
		Ratings: NewRatingRepo(d, logger),
		Tx:      d,
	}
}
