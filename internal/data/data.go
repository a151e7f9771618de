package data

import (
	"context"
	"fmt"
	"time"

	"movieratings/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewRedis,
	NewStore,
	NewRatingsFetcher,
	wire.FieldsOf(new(*Store), "Movies", "Users", "Ratings", "Tx"),
)

// seedMovies are inserted by Seed into an empty movies table.
var seedMovies = []Movie{
	{Title: "Batman Begins", Rating: 4.2},
	{Title: "The Dark Knight", Rating: 3},
}

// Data encapsulates the database connection and the optional Redis client
type Data struct {
	db  *gorm.DB
	rdb *redis.Client
	log *log.Helper
}

type contextTxKey struct{}

// NewData opens the relational database selected by c.Driver.
func NewData(c *conf.Data, rdb *redis.Client, logger log.Logger) (*Data, func(), error) {
	l := log.NewHelper(log.With(logger, "module", "data"))

	dialector, err := openDialector(c)
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(l),
	})
	if err != nil {
		l.Errorf("failed to connect to database: %v", err)
		return nil, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		l.Errorf("failed to get database instance: %v", err)
		return nil, nil, err
	}

	// Configure connection pool
	if c.Driver == conf.DriverSQLite {
		// one writer; in-memory databases also live and die with their connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(c.Database.MaxIdleConns)
		sqlDB.SetMaxOpenConns(c.Database.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(c.Database.ConnMaxLifetime.AsDuration())
	}

	l.Infof("database connected successfully (driver=%s)", c.Driver)

	data := &Data{
		db:  db,
		rdb: rdb,
		log: l,
	}

	cleanup := func() {
		l.Info("closing data resources")
		if err := sqlDB.Close(); err != nil {
			l.Errorf("failed to close database: %v", err)
		}
	}

	return data, cleanup, nil
}

// gormWriter routes gorm's own log lines through the kratos logger.
type gormWriter struct {
	log *log.Helper
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

func newGormLogger(l *log.Helper) gormlogger.Interface {
	return gormlogger.New(gormWriter{log: l}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func openDialector(c *conf.Data) (gorm.Dialector, error) {
	if c.Database == nil {
		return nil, fmt.Errorf("driver %s requires a database section", c.Driver)
	}
	switch c.Driver {
	case conf.DriverPostgres:
		return postgres.Open(c.Database.Source), nil
	case conf.DriverSQLite:
		return sqlite.Open(c.Database.Source), nil
	default:
		return nil, fmt.Errorf("driver %s is not relational", c.Driver)
	}
}

// NewRedis connects to Redis when an address is configured. Redis is
// optional: a nil client is returned when it is unset or unreachable.
func NewRedis(c *conf.Data, logger log.Logger) (*redis.Client, func(), error) {
	l := log.NewHelper(log.With(logger, "module", "data/redis"))
	if c.Redis == nil || c.Redis.Addr == "" {
		return nil, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Redis.Addr,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		ReadTimeout:  c.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Redis.WriteTimeout.AsDuration(),
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		l.Warnf("failed to connect to redis: %v", err)
		_ = rdb.Close()
		return nil, func() {}, nil
	}
	l.Info("redis connected successfully")

	return rdb, func() {
		if err := rdb.Close(); err != nil {
			l.Errorf("failed to close redis: %v", err)
		}
	}, nil
}

// unitOfWork is the transaction bound to a ctx plus the work deferred until
// its outermost commit.
type unitOfWork struct {
	tx          *gorm.DB
	afterCommit []func()
}

// InTx runs fn inside a database transaction. Repositories called with the
// ctx passed to fn join that transaction; nested calls use savepoints.
// Callbacks registered with AfterCommit run once the outermost transaction
// has committed.
func (d *Data) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if outer, ok := ctx.Value(contextTxKey{}).(*unitOfWork); ok {
		pending := len(outer.afterCommit)
		err := outer.tx.Transaction(func(tx *gorm.DB) error {
			prev := outer.tx
			outer.tx = tx
			defer func() { outer.tx = prev }()
			return fn(ctx)
		})
		if err != nil {
			// rolled back to the savepoint
			outer.afterCommit = outer.afterCommit[:pending]
		}
		return err
	}

	uow := &unitOfWork{}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow.tx = tx
		return fn(context.WithValue(ctx, contextTxKey{}, uow))
	})
	if err != nil {
		return err
	}
	for _, f := range uow.afterCommit {
		f()
	}
	return nil
}

// AfterCommit defers f until the transaction bound to ctx commits, and drops
// it on rollback. Outside a transaction f runs immediately.
func (d *Data) AfterCommit(ctx context.Context, f func()) {
	if uow, ok := ctx.Value(contextTxKey{}).(*unitOfWork); ok {
		uow.afterCommit = append(uow.afterCommit, f)
		return
	}
	f()
}

// DB returns the transaction bound to ctx, or the shared handle.
func (d *Data) DB(ctx context.Context) *gorm.DB {
	if uow, ok := ctx.Value(contextTxKey{}).(*unitOfWork); ok {
		return uow.tx
	}
	return d.db.WithContext(ctx)
}

// ForUpdate is DB with the selected rows locked until the transaction bound
// to ctx ends. SQLite serializes writers already, so only postgres locks.
func (d *Data) ForUpdate(ctx context.Context) *gorm.DB {
	db := d.DB(ctx)
	if _, ok := ctx.Value(contextTxKey{}).(*unitOfWork); !ok || d.db.Dialector.Name() != "postgres" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// Migrate creates or updates the movies, users and ratings tables.
func (d *Data) Migrate(ctx context.Context) error {
	if err := d.db.WithContext(ctx).AutoMigrate(&Movie{}, &User{}, &Rating{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	d.log.Info("database migrated")
	return nil
}

// Seed inserts the initial movies when the movies table is empty. It
// reports how many rows were inserted.
func (d *Data) Seed(ctx context.Context) (int, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&Movie{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	if count > 0 {
		d.log.Infof("movies table has %d rows, skipping seed", count)
		return 0, nil
	}
	movies := make([]Movie, len(seedMovies))
	copy(movies, seedMovies)
	if err := d.db.WithContext(ctx).Create(&movies).Error; err != nil {
		return 0, fmt.Errorf("failed to seed movies: %w", err)
	}
	return len(movies), nil
}
