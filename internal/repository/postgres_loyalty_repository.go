package repository

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

var historyColumns = []string{
	"id", "account_id", "position", "transaction_type", "points", "description", "reference", "occurred_at",
}

// PostgresLoyaltyRepository stores accounts in loyalty_accounts and the ledger
// in points_history, one row per entry.
type PostgresLoyaltyRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresLoyaltyRepository(pool *pgxpool.Pool) *PostgresLoyaltyRepository {
	return &PostgresLoyaltyRepository{pool: pool}
}

func (r *PostgresLoyaltyRepository) RunMigrations(migrationsDir string) error {
	db := stdlib.OpenDBFromPool(r.pool)

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "loyalty_schema_migrations",
	})
	if err != nil {
		return errors.Wrap(err, "could not create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsDir),
		"postgres",
		driver,
	)
	if err != nil {
		return errors.Wrap(err, "could not create migrate instance")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "could not run migrations")
	}
	return nil
}

func (r *PostgresLoyaltyRepository) GetAccount(ctx context.Context, userID string) (*domain.LoyaltyAccount, error) {
	// one snapshot for the account row and its ledger
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, errors.Wrap(err, "begin read transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var account domain.LoyaltyAccount
	err = tx.QueryRow(ctx,
		`SELECT id, user_id, opening_balance, total_points, version, created_at, updated_at
		 FROM loyalty_accounts WHERE user_id = $1`, userID,
	).Scan(
		&account.ID,
		&account.UserID,
		&account.OpeningBalance,
		&account.TotalPoints,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query loyalty account")
	}

	rows, err := tx.Query(ctx,
		`SELECT id, transaction_type, points, description, COALESCE(reference, ''), occurred_at
		 FROM points_history WHERE account_id = $1 ORDER BY position`, account.ID)
	if err != nil {
		return nil, errors.Wrap(err, "query points history")
	}
	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PointsTransaction, error) {
		var entry domain.PointsTransaction
		var txType string
		err := row.Scan(&entry.ID, &txType, &entry.Points, &entry.Description, &entry.Reference, &entry.OccurredAt)
		entry.Type = domain.TransactionType(txType)
		return entry, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan points history")
	}
	account.PointsHistory = history

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit read transaction")
	}

	account.MarkCommitted()
	return &account, nil
}

func (r *PostgresLoyaltyRepository) SaveAccount(ctx context.Context, account *domain.LoyaltyAccount) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserting := account.ID == ""
	accountID := account.ID
	newVersion := account.Version + 1

	if inserting {
		accountID = uuid.NewString()
		newVersion = 0
		tag, err := tx.Exec(ctx,
			`INSERT INTO loyalty_accounts (id, user_id, opening_balance, total_points, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 0, $5, $6)
			 ON CONFLICT (user_id) DO NOTHING`,
			accountID, account.UserID, account.OpeningBalance, account.TotalPoints, account.CreatedAt, account.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, "insert loyalty account")
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	} else {
		tag, err := tx.Exec(ctx,
			`UPDATE loyalty_accounts
			 SET total_points = $1, opening_balance = $2, updated_at = $3, version = version + 1
			 WHERE id = $4 AND version = $5`,
			account.TotalPoints, account.OpeningBalance, account.UpdatedAt, accountID, account.Version)
		if err != nil {
			return errors.Wrap(err, "update loyalty account")
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}

	pending := account.Uncommitted()
	if len(pending) > 0 {
		first := len(account.PointsHistory) - len(pending)
		rows := make([][]any, 0, len(pending))
		for i, entry := range pending {
			var reference any
			if entry.Reference != "" {
				reference = entry.Reference
			}
			rows = append(rows, []any{
				entry.ID, accountID, int32(first + i), string(entry.Type), entry.Points,
				entry.Description, reference, entry.OccurredAt,
			})
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"points_history"}, historyColumns, pgx.CopyFromRows(rows))
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		if err != nil {
			return errors.Wrap(err, "insert points history")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		return errors.Wrap(err, "commit transaction")
	}

	account.ID = accountID
	account.Version = newVersion
	account.MarkCommitted()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
