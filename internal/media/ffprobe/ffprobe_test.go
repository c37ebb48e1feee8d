package ffprobe

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video"},
			{CodecType: "audio", Duration: "2.3456"},
		},
		Format: Format{Duration: "3.5", Size: "1000"},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 3.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	got, err := result.AudioDuration()
	if err != nil {
		t.Fatalf("AudioDuration: %v", err)
	}
	if got != 2346*time.Millisecond {
		t.Fatalf("expected millisecond rounding, got %v", got)
	}
}

func TestAudioDurationFallsBackToContainer(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "N/A"}},
		Format:  Format{Duration: "1.0004"},
	}
	got, err := result.AudioDuration()
	if err != nil {
		t.Fatalf("AudioDuration: %v", err)
	}
	if got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
}

func TestAudioDurationRejectsZero(t *testing.T) {
	cases := map[string]Result{
		"zero":     {Streams: []Stream{{CodecType: "audio", Duration: "0"}}, Format: Format{Duration: "0.0"}},
		"tiny":     {Streams: []Stream{{CodecType: "audio", Duration: "0.0001"}}},
		"no audio": {Streams: []Stream{{CodecType: "video"}}, Format: Format{Duration: "4"}},
		"garbage":  {Streams: []Stream{{CodecType: "audio", Duration: "bad"}}, Format: Format{Duration: "bad"}},
	}
	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := result.AudioDuration(); !errors.Is(err, ErrNoDuration) {
				t.Fatalf("expected ErrNoDuration, got %v", err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	raw := []byte(`{"streams":[{"index":0,"codec_type":"audio","codec_name":"mp3","duration":"4.200000"}],"format":{"duration":"4.210000","size":"67890"}}`)
	result, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d, err := result.AudioDuration()
	if err != nil || d != 4200*time.Millisecond {
		t.Fatalf("unexpected duration %v err=%v", d, err)
	}
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}
