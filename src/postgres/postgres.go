package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var connectionString string

func ConfigurePostgres(connString string) {
	connectionString = connString
}

func GetConnection(ctx context.Context) (*pgx.Conn, error) {
	pg, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection to pg")
	}
	return pg, nil
}

func DoQuery(ctx context.Context, handler func(conn *pgx.Conn) error) error {
	conn, err := GetConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return handler(conn)
}

func DoExec(ctx context.Context, command string, args ...any) (int64, error) {
	var affected int64
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, command, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

func Ping(ctx context.Context) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		return errors.Wrap(conn.Ping(ctx), "failed pinging postgres")
	})
}
