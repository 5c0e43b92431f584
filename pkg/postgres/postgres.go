package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

type DB struct {
	Host     string `yaml:"host" envconfig:"DB_HOST" validate:"required"`
	Port     string `yaml:"port" envconfig:"DB_PORT" validate:"required"`
	User     string `yaml:"user" envconfig:"DB_USER" validate:"required"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD" validate:"required" json:"-"`
	DBName   string `yaml:"dbname" envconfig:"DB_NAME" validate:"required"`
	SSLMode  string `yaml:"sslmode" envconfig:"DB_SSLMODE" default:"disable"`
}

func (d *DB) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// NewPostgresDB connects the pool and brings the schema up to date before
// handing the pool out.
func NewPostgresDB(ctx context.Context, cfg *DB, migrationFiles embed.FS) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.dsn())
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.New")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "db ping")
	}
	if err := migrate(cfg.dsn(), migrationFiles); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return pool, nil
}

func migrate(dsn string, migrationFiles embed.FS) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "goose open")
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
