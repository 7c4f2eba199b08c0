package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and hands the
// transaction handle to fn as tx. Repositories accept a nil tx and then run on
// the pool; when tx is a real transaction they add row locks where they need them.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		ok, err := payments.TransitionStatus(ctx, tx, depositID, to, from, meta)
//		...
//	})
//
// The concrete type of tx is infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
