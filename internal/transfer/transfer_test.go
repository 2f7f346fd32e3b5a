package transfer

import (
	"context"
	"testing"

	"github.com/hypemix/hypemix/internal/apperr"
	"github.com/hypemix/hypemix/internal/models"
)

func TestChooseTransport(t *testing.T) {
	s := NewSelector(nil, 3, 45)

	cases := []struct {
		name string
		size int64
		want Transport
		err  bool
	}{
		{"tiny", 1024, TransportInline, false},
		{"just under threshold", 3*mib - 1, TransportInline, false},
		{"exactly at threshold", 3 * mib, TransportBlob, false},
		{"mid-range", 20 * mib, TransportBlob, false},
		{"exactly at max", 45 * mib, TransportBlob, false},
		{"over max", 45*mib + 1, "", true},
	}

	for _, c := range cases {
		got, err := s.ChooseTransport(c.size)
		if c.err {
			if err == nil {
				t.Errorf("%s: expected error", c.name)
			} else if apperr.Classify(err) != apperr.ClassPayloadTooLarge {
				t.Errorf("%s: expected payload_too_large, got %s", c.name, apperr.Classify(err))
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

func TestChooseTransportDeterministic(t *testing.T) {
	s := NewSelector(nil, 3, 45)

	for i := 0; i < 10; i++ {
		got, err := s.ChooseTransport(2 * mib)
		if err != nil || got != TransportInline {
			t.Fatalf("run %d: expected inline, got %s (%v)", i, got, err)
		}
	}
}

func TestPackKeepsSmallPayloadsInline(t *testing.T) {
	s := NewSelector(nil, 3, 45)

	asset := models.AudioAsset{
		Name: "clip.mp3",
		Data: []byte("small payload"),
	}

	packed, err := s.Pack(context.Background(), asset, "tts-audio/x/clip.mp3")
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	if !packed.Inline() {
		t.Error("small payload should stay inline")
	}
	if packed.Size != int64(len(asset.Data)) {
		t.Errorf("expected size %d, got %d", len(asset.Data), packed.Size)
	}
}

func TestPackRejectsOversizedPayload(t *testing.T) {
	s := NewSelector(nil, 1, 2)

	asset := models.AudioAsset{Data: make([]byte, 3*mib)}

	if _, err := s.Pack(context.Background(), asset, "final-audio/x/final.mp3"); err == nil {
		t.Fatal("expected oversized payload to be rejected")
	}
}

func TestPackRejectsEmptyAsset(t *testing.T) {
	s := NewSelector(nil, 3, 45)

	_, err := s.Pack(context.Background(), models.AudioAsset{Name: "ghost.mp3"}, "tts-audio/x/ghost.mp3")
	if err == nil {
		t.Fatal("asset with neither data nor URL accepted")
	}
	if apperr.Classify(err) != apperr.ClassValidation {
		t.Errorf("expected validation, got %s", apperr.Classify(err))
	}

	// Indirect assets still pass through unchanged
	indirect := models.AudioAsset{URL: "https://blob.example.com/x.mp3"}
	packed, err := s.Pack(context.Background(), indirect, "tts-audio/x/x.mp3")
	if err != nil || packed.URL != indirect.URL {
		t.Errorf("indirect asset should pass through: %v %v", packed, err)
	}
}

func TestResolveInlineAsset(t *testing.T) {
	s := NewSelector(nil, 3, 45)

	data, err := s.Resolve(context.Background(), models.AudioAsset{Data: []byte("bytes")})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if string(data) != "bytes" {
		t.Errorf("unexpected data: %q", data)
	}

	if _, err := s.Resolve(context.Background(), models.AudioAsset{}); err == nil {
		t.Error("expected error for asset with neither data nor URL")
	}
}
