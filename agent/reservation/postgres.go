package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

// OpenPostgres opens a bun handle over pgdriver and verifies the connection.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.Timeout > 0 {
		opts = append(opts, pgdriver.WithTimeout(cfg.Timeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresRepository stores reservations in the reservations table.
type PostgresRepository struct {
	db bun.IDB
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db bun.IDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the reservations table when missing.
func (p *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().Model((*Reservation)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create reservations table: %w", err)
	}
	return nil
}

func (p *PostgresRepository) List(ctx context.Context, f Filter) ([]Reservation, error) {
	var rows []Reservation
	q := p.db.NewSelect().Model(&rows)
	if name := strings.TrimSpace(f.CustomerName); name != "" {
		q = q.Where("lower(r.customer_name) = lower(?)", name)
	}
	if roomType := strings.TrimSpace(f.RoomType); roomType != "" {
		q = q.Where("lower(r.room_type) = lower(?)", roomType)
	}
	if !f.CheckIn.IsZero() {
		q = q.Where("r.check_in = ?", f.CheckIn.Format(DateLayout))
	}
	if err := q.OrderExpr("r.check_in ASC, r.customer_name ASC, r.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return rows, nil
}

func (p *PostgresRepository) Create(ctx context.Context, r *Reservation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, err := p.db.NewInsert().Model(r).Returning("created_at, updated_at").Exec(ctx); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (p *PostgresRepository) Update(ctx context.Context, r *Reservation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	res, err := p.db.NewUpdate().Model(r).
		Column("customer_name", "room_type", "check_in", "check_out", "adults", "children", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	return expectOneRow(res)
}

func (p *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := p.db.NewDelete().Model((*Reservation)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
