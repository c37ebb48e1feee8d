package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/gateway"
	"reelforge/internal/media/store"
	"reelforge/internal/services"
	"reelforge/internal/testsupport"
)

// id3Header is the smallest payload audiofile recognises as mp3.
const id3Header = "ID3\x03\x00\x00\x00\x00\x00\x00 narration"

func fastPolicy() gateway.Policy {
	p := gateway.DefaultPolicy()
	p.Sleeper = func(time.Duration) {}
	return p
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return st
}

const edgeStub = `out=""
args="$*"
while [ $# -gt 0 ]; do
  case "$1" in
    --write-media) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
echo "$args" > "$(dirname "$0")/args.txt"
printf 'ID3\003\000\000\000\000\000\000 narration' > "$out"`

func TestEdgeClientWritesAudioBlob(t *testing.T) {
	dir := t.TempDir()
	bin := testsupport.WriteScript(t, filepath.Join(dir, "edge-tts"), edgeStub)
	client := NewEdgeClient(EdgeConfig{Binary: bin, Voice: "en-US-AriaNeural", Rate: "-10%"}, openStore(t), WithPolicy(fastPolicy()))

	loc, err := client.Synthesize(context.Background(), gateway.SpeechRequest{RunID: "run-1", Index: 2, Text: "Hello there"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if loc.Ext() != "mp3" {
		t.Fatalf("ext = %q, want mp3", loc.Ext())
	}
	if !strings.HasPrefix(filepath.Base(loc.Path()), "002-") {
		t.Fatalf("unexpected blob name %s", loc.Path())
	}
	if !loc.Exists() {
		t.Fatal("blob missing")
	}
	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	for _, want := range []string{"--voice en-US-AriaNeural", "--rate=-10%", "--text=Hello there"} {
		if !strings.Contains(string(args), want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
}

func TestEdgeArgsAttachDashLeadingText(t *testing.T) {
	client := NewEdgeClient(EdgeConfig{Voice: "en-US-GuyNeural"}, nil)
	args := client.args(gateway.SpeechRequest{Text: "-5 degrees outside tonight"}, "/tmp/out.mp3")
	if args[0] != "--text=-5 degrees outside tonight" {
		t.Fatalf("text arg = %q", args[0])
	}
	for i, arg := range args {
		if arg == "--text" {
			t.Fatalf("text passed as separate argument at %d: %q", i, args)
		}
	}
}

func TestEdgeClientMissingBinaryIsConfigurationError(t *testing.T) {
	client := NewEdgeClient(EdgeConfig{Binary: filepath.Join(t.TempDir(), "missing-edge-tts")}, openStore(t), WithPolicy(fastPolicy()))
	_, err := client.Synthesize(context.Background(), gateway.SpeechRequest{RunID: "r", Text: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if services.Retryable(err) {
		t.Fatalf("missing binary should not be retried: %v", err)
	}
}

func TestEdgeClientRetriesFailedRuns(t *testing.T) {
	dir := t.TempDir()
	bin := testsupport.WriteScript(t, filepath.Join(dir, "edge-tts"), `echo "connection reset" >&2
exit 1`)
	client := NewEdgeClient(EdgeConfig{Binary: bin}, openStore(t), WithPolicy(fastPolicy()))
	_, err := client.Synthesize(context.Background(), gateway.SpeechRequest{RunID: "r", Text: "hi"})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("stderr not surfaced: %v", err)
	}
}

func TestEdgeClientRejectsEmptyText(t *testing.T) {
	client := NewEdgeClient(EdgeConfig{}, openStore(t))
	_, err := client.Synthesize(context.Background(), gateway.SpeechRequest{RunID: "r", Text: "  "})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHTTPClientStoresAudio(t *testing.T) {
	var got speechPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte(id3Header))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL + "/tts", Voice: "narrator", Speed: 1.2}, openStore(t))
	loc, err := client.Synthesize(context.Background(), gateway.SpeechRequest{RunID: "run", Index: 0, Text: "Hi"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if loc.Ext() != "mp3" || !loc.Exists() {
		t.Fatalf("unexpected locator %s", loc)
	}
	if got.Text != "Hi" || got.Voice != "narrator" || got.Speed != 1.2 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestHTTPClientEmptyPayloadIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return
		}
		_, _ = w.Write([]byte(id3Header))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL}, openStore(t), WithPolicy(fastPolicy()))
	if _, err := client.Synthesize(context.Background(), gateway.SpeechRequest{RunID: "run", Text: "Hi"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestHTTPClientRejectsUnknownAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"not audio"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL}, openStore(t), WithPolicy(fastPolicy()))
	_, err := client.Synthesize(context.Background(), gateway.SpeechRequest{RunID: "run", Text: "Hi"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
