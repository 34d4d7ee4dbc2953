package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

// psql builds queries with postgres $N placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func getExec(repoExec core.DBExecutor, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repoExec
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// selectAll runs qb and scans every row into dest, a pointer to a slice of
// db-tagged structs.
func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, qb sq.SelectBuilder) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	if err = sqlx.StructScan(rows, dest); err != nil {
		return err
	}
	return rows.Err()
}

// execAffected runs a non-select builder and reports affected rows.
func execAffected(ctx context.Context, exec core.DBExecutor, qb sq.Sqlizer) (int, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// queryIntRow scans a single integer result (counts, returned ids).
func queryIntRow(ctx context.Context, exec core.DBExecutor, qb sq.Sqlizer) (int, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var n int
	if err = exec.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
