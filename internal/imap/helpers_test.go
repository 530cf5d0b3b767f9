package imap

import (
	"testing"

	"github.com/velomail/velo/backend/internal/testutil"
)

func testConnConfig(srv *testutil.TestIMAPServer) ConnConfig {
	return ConnConfig{
		AccountID: "account-1",
		Host:      srv.Host(),
		Port:      srv.Port(),
		Security:  SecurityNone,
		Username:  srv.Username(),
		Password:  srv.Password(),
	}
}

func uidsEqual(t *testing.T, got, want []uint32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected UIDs %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected UIDs %v, got %v", want, got)
		}
	}
}
