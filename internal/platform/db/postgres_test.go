package db

import "testing"

func TestConnectRequiresDSN(t *testing.T) {
	if _, err := Connect(""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestCloseNilIsNoop(t *testing.T) {
	var pg *Postgres
	if err := pg.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
	if err := (&Postgres{}).Close(); err != nil {
		t.Fatalf("close empty: %v", err)
	}
}
