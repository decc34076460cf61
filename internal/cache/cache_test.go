package cache

import "testing"

func TestApplicationVersionKey(t *testing.T) {
	got := ApplicationVersionKey("app-key-123")
	want := "appver:app-key-123"
	if got != want {
		t.Errorf("ApplicationVersionKey() = %q, want %q", got, want)
	}
}

func TestMasterKeyPairKey(t *testing.T) {
	got := MasterKeyPairKey("app-1")
	want := "masterkey:app-1"
	if got != want {
		t.Errorf("MasterKeyPairKey() = %q, want %q", got, want)
	}
}

func TestNewClient_DoesNotDial(t *testing.T) {
	// redis.NewClient is lazy: constructing a client must not attempt a
	// connection, so this must not block or error even with no server
	// listening on the address.
	client := NewClient("127.0.0.1:1")
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
