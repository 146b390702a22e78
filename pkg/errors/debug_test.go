package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpCollectsChainAndCode(t *testing.T) {
	root := fmt.Errorf("reserve stock: %w", New(CodeConflict, "size sold out"))
	d := Dump(Wrap(CodeInternal, root, "checkout failed"))

	if d.Code != CodeInternal {
		t.Fatalf("expected outermost code, got %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
	if d.PG != nil {
		t.Fatalf("expected no pg diagnostics, got %+v", d.PG)
	}
	if _, ok := d.Fields()["pg_code"]; ok {
		t.Fatalf("pg fields must be omitted without a driver error")
	}
}

func TestDumpExtractsPostgresDiagnostics(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_charge_id_key", TableName: "orders"}
	d := Dump(Wrap(CodeConflict, pgxErr, "insert order"))
	if d.PG == nil || d.PG.Constraint != "orders_charge_id_key" {
		t.Fatalf("expected pgx diagnostics, got %+v", d.PG)
	}
	if got := d.Fields()["pg_table"]; got != "orders" {
		t.Fatalf("expected pg_table orders, got %v", got)
	}

	pqErr := &pq.Error{Code: "23503", Column: "user_id"}
	d = Dump(fmt.Errorf("save: %w", pqErr))
	if d.PG == nil || d.PG.Code != "23503" || d.PG.Column != "user_id" {
		t.Fatalf("expected pq diagnostics, got %+v", d.PG)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.Message != "" || d.Chain != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
