package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// writeFakeBinary writes an executable shell script to dir/name and returns
// its path, so tests can swap Toolkit.FFmpegBinary/Prober.Binary for a
// script that behaves like ffmpeg/ffprobe without touching real media tools.
func writeFakeBinary(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake binary %s: %v", name, err)
	}
	return path
}

func TestExtractLastFrameFastPathSucceeds(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeFakeBinary(t, dir, "ffmpeg", `
for a in "$@"; do
  last="$a"
done
: > "$last"
exit 0
`)
	tk := &Toolkit{FFmpegBinary: ffmpeg, Prober: NewProber()}

	video := filepath.Join(dir, "in.mp4")
	if err := os.WriteFile(video, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "frames", "last.jpg")

	got, err := tk.ExtractLastFrame(context.Background(), video, out)
	if err != nil {
		t.Fatalf("ExtractLastFrame: %v", err)
	}
	if got != out {
		t.Fatalf("got %q want %q", got, out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestExtractLastFrameFallsBackToProbe(t *testing.T) {
	dir := t.TempDir()
	attempts := filepath.Join(dir, "attempts")
	if err := os.WriteFile(attempts, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	ffmpeg := writeFakeBinary(t, dir, "ffmpeg", `
echo "x" >> `+attempts+`
n=$(wc -l < `+attempts+`)
for a in "$@"; do
  last="$a"
done
if [ "$n" -eq "1" ]; then
  exit 1
fi
: > "$last"
exit 0
`)
	ffprobe := writeFakeBinary(t, dir, "ffprobe", `
echo '{"format":{"duration":"12.0"},"streams":[{"codec_type":"video","codec_name":"h264","duration":"12.0","sample_rate":"","channels":0}]}'
`)
	tk := &Toolkit{FFmpegBinary: ffmpeg, Prober: &Prober{Binary: ffprobe}}

	video := filepath.Join(dir, "in.mp4")
	if err := os.WriteFile(video, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "last.jpg")

	got, err := tk.ExtractLastFrame(context.Background(), video, out)
	if err != nil {
		t.Fatalf("ExtractLastFrame: %v", err)
	}
	if got != out {
		t.Fatalf("got %q want %q", got, out)
	}
}

func TestExtractLastFrameBothPathsFail(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeFakeBinary(t, dir, "ffmpeg", `exit 1`)
	ffprobe := writeFakeBinary(t, dir, "ffprobe", `echo '{"format":{"duration":"5.0"},"streams":[]}'`)
	tk := &Toolkit{FFmpegBinary: ffmpeg, Prober: &Prober{Binary: ffprobe}}

	video := filepath.Join(dir, "in.mp4")
	os.WriteFile(video, []byte("fake"), 0o644)
	out := filepath.Join(dir, "last.jpg")

	if _, err := tk.ExtractLastFrame(context.Background(), video, out); err == nil {
		t.Fatal("expected error when both fast path and fallback fail")
	}
}
