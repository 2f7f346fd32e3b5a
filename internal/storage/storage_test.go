package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// blobServer is a minimal in-memory double of the blob store API.
type blobServer struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newBlobServer() *blobServer {
	return &blobServer{blobs: make(map[string][]byte)}
}

func (b *blobServer) handler(baseURL *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		key := strings.TrimPrefix(r.URL.Path, "/")

		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			b.blobs[key] = data
			json.NewEncoder(w).Encode(map[string]string{"url": *baseURL + "/" + key})

		case http.MethodGet:
			if r.URL.Path == "/" {
				prefix := r.URL.Query().Get("prefix")
				type blob struct {
					URL      string `json:"url"`
					Pathname string `json:"pathname"`
					Size     int64  `json:"size"`
				}
				out := struct {
					Blobs []blob `json:"blobs"`
				}{Blobs: []blob{}}
				for k, v := range b.blobs {
					if strings.HasPrefix(k, prefix) {
						out.Blobs = append(out.Blobs, blob{URL: *baseURL + "/" + k, Pathname: k, Size: int64(len(v))})
					}
				}
				json.NewEncoder(w).Encode(out)
				return
			}
			data, ok := b.blobs[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)

		case http.MethodDelete:
			if _, ok := b.blobs[key]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(b.blobs, key)
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func newTestStore(t *testing.T) (*Store, *blobServer) {
	t.Helper()
	backend := newBlobServer()
	var baseURL string
	srv := httptest.NewServer(backend.handler(&baseURL))
	baseURL = srv.URL
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-token"), backend
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	url, err := store.Put(t.Context(), "tts-audio/sess/clip.mp3", []byte("audio bytes"), "audio/mpeg")
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// The stored key carries a random suffix before the extension
	if !strings.Contains(url, "tts-audio/sess/clip-") || !strings.HasSuffix(url, ".mp3") {
		t.Errorf("unexpected blob URL: %q", url)
	}

	data, err := store.Get(t.Context(), url)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "audio bytes" {
		t.Errorf("round trip corrupted data: %q", data)
	}
}

func TestPutNeverOverwrites(t *testing.T) {
	store, backend := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Put(t.Context(), "final-audio/sess/final.mp3", []byte(fmt.Sprintf("v%d", i)), "audio/mpeg"); err != nil {
			t.Fatalf("put %d failed: %v", i, err)
		}
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.blobs) != 3 {
		t.Errorf("expected 3 distinct objects, got %d", len(backend.blobs))
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)

	url, err := store.Put(t.Context(), "music-audio/sess/track.mp3", []byte("x"), "audio/mpeg")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(t.Context(), url); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	// Second delete of the same object must also succeed
	if err := store.Delete(t.Context(), url); err != nil {
		t.Errorf("repeated delete failed: %v", err)
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Put(t.Context(), "tts-audio/a/one.mp3", []byte("1"), "audio/mpeg"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(t.Context(), "tts-audio/a/two.mp3", []byte("22"), "audio/mpeg"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(t.Context(), "tts-audio/b/other.mp3", []byte("3"), "audio/mpeg"); err != nil {
		t.Fatal(err)
	}

	blobs, err := store.List(t.Context(), "tts-audio/a/")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("expected 2 blobs under the prefix, got %d", len(blobs))
	}
	for _, b := range blobs {
		if !strings.HasPrefix(b.Pathname, "tts-audio/a/") {
			t.Errorf("blob %q leaked across prefixes", b.Pathname)
		}
		if b.Size == 0 {
			t.Errorf("blob %q missing size", b.Pathname)
		}
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	store := New(srv.URL, "test-token")
	data, err := store.Get(t.Context(), srv.URL+"/some/blob.mp3")
	if err != nil {
		t.Fatalf("expected recovery after retries: %v", err)
	}
	if string(data) != "recovered" {
		t.Errorf("unexpected data: %q", data)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestSuffixKey(t *testing.T) {
	got := suffixKey("music-audio/sess/track.mp3")
	if !strings.HasPrefix(got, "music-audio/sess/track-") || !strings.HasSuffix(got, ".mp3") {
		t.Errorf("suffix should land before the extension: %q", got)
	}

	// Keys without an extension get the suffix appended
	got = suffixKey("music-audio/sess/track")
	if !strings.HasPrefix(got, "music-audio/sess/track-") {
		t.Errorf("unexpected suffixed key: %q", got)
	}

	// Dots in directories don't confuse the extension split
	got = suffixKey("v1.2/sess/track")
	if strings.Contains(got, "v1-") {
		t.Errorf("directory dot treated as extension: %q", got)
	}
}
