package db

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

func TestIsFatalQueryErrorPostgres(t *testing.T) {
	cases := []struct {
		code  pq.ErrorCode
		fatal bool
		name  string
	}{
		{"42601", true, "syntax error"},
		{"42P01", true, "undefined table"},
		{"28P01", true, "invalid password"},
		{"3D000", true, "invalid catalog name"},
		{"40001", false, "serialization failure (transient)"},
	}
	for _, c := range cases {
		err := &pq.Error{Code: c.code}
		if got := isFatalQueryError(err); got != c.fatal {
			t.Errorf("%s (%s): expected fatal=%v, got %v", c.name, c.code, c.fatal, got)
		}
	}
}

func TestIsFatalQueryErrorMySQL(t *testing.T) {
	cases := []struct {
		number uint16
		fatal  bool
		name   string
	}{
		{1054, true, "unknown column"},
		{1146, true, "unknown table"},
		{1064, true, "syntax error"},
		{1045, true, "access denied"},
		{1049, true, "unknown database"},
		{1213, false, "deadlock (transient)"},
	}
	for _, c := range cases {
		err := &mysql.MySQLError{Number: c.number}
		if got := isFatalQueryError(err); got != c.fatal {
			t.Errorf("%s (%d): expected fatal=%v, got %v", c.name, c.number, c.fatal, got)
		}
	}
}
