package muc

import (
	"errors"
	"testing"
)

func TestDecodeStatus(t *testing.T) {
	s := selfPresence(t, testOccupant, "201", "110", "999")

	status, err := DecodeStatus(s)
	if err != nil {
		t.Fatalf("DecodeStatus returned error: %v", err)
	}
	if !status.Has(StatusSelfPresence) || !status.Has(StatusRoomCreated) {
		t.Fatalf("expected 110 and 201, got %v", status.Codes())
	}
	if status.Has(StatusKicked) {
		t.Fatalf("did not expect 307")
	}
	if len(status.Unknown) != 1 || status.Unknown[0] != 999 {
		t.Fatalf("expected unknown code 999 to be kept, got %v", status.Unknown)
	}

	codes := status.Codes()
	want := []StatusCode{110, 201, 999}
	if len(codes) != len(want) {
		t.Fatalf("expected %v, got %v", want, codes)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, codes)
		}
	}
}

func TestDecodeStatusMissingPayload(t *testing.T) {
	s := mustStanza(t, `<presence from='room@conference.test.com/nick'/>`)
	if _, err := DecodeStatus(s); !errors.Is(err, ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
}

func TestDecodeStatusMalformedCode(t *testing.T) {
	s := selfPresence(t, testOccupant, "110", "abc")
	if _, err := DecodeStatus(s); !errors.Is(err, ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
}

func TestStatusSetAddIsIdempotent(t *testing.T) {
	set := NewStatusSet(StatusSelfPresence, StatusSelfPresence)
	set.Add(StatusCode(555))
	set.Add(StatusCode(555))

	if len(set.Codes()) != 2 {
		t.Fatalf("expected 2 codes, got %v", set.Codes())
	}
	if (StatusSet{}).Empty() != true || set.Empty() {
		t.Fatalf("unexpected Empty result")
	}
}
