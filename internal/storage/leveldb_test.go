package storage

import (
	"errors"
	"testing"

	"github.com/senutpal/quorumstore/internal/clock"
)

func TestLevelDBStorageRoundTrip(t *testing.T) {
	s, err := NewLevelDBStorage()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testRoundTrip(t, s)
}

func TestLevelDBStorageClosed(t *testing.T) {
	s, err := NewLevelDBStorage()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePromised(clock.New(1, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("save after close err = %v", err)
	}
	if _, _, err := s.LoadAccepted(); !errors.Is(err, ErrClosed) {
		t.Errorf("load after close err = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestOpen(t *testing.T) {
	for _, kind := range []string{"", KindMemory, KindLevelDB} {
		s, err := Open(kind)
		if err != nil {
			t.Errorf("Open(%q): %v", kind, err)
			continue
		}
		s.Close()
	}
	if _, err := Open("etcd"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Open(etcd) err = %v", err)
	}
}
