package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func fakeFFmpegAlwaysWritesOutput(t *testing.T, dir string) string {
	return writeFakeBinary(t, dir, "ffmpeg", `
for a in "$@"; do
  last="$a"
done
printf x > "$last"
exit 0
`)
}

func TestConcatenateVideosCopySucceeds(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := fakeFFmpegAlwaysWritesOutput(t, dir)
	ffprobe := writeFakeBinary(t, dir, "ffprobe", `
path="$1"
for a in "$@"; do path="$a"; done
case "$path" in
  *out*) echo '{"format":{"duration":"10.0"},"streams":[{"codec_type":"video","codec_name":"h264","duration":"10.0","sample_rate":"","channels":0}]}' ;;
  *) echo '{"format":{"duration":"5.0"},"streams":[{"codec_type":"video","codec_name":"h264","duration":"5.0","sample_rate":"","channels":0}]}' ;;
esac
`)
	tk := &Toolkit{FFmpegBinary: ffmpeg, Prober: &Prober{Binary: ffprobe}}

	in1 := filepath.Join(dir, "in1.mp4")
	in2 := filepath.Join(dir, "in2.mp4")
	os.WriteFile(in1, []byte("a"), 0o644)
	os.WriteFile(in2, []byte("b"), 0o644)
	out := filepath.Join(dir, "out.mp4")

	got, err := tk.ConcatenateVideos(context.Background(), []string{in1, in2}, out, ConcatModeCopy)
	if err != nil {
		t.Fatalf("ConcatenateVideos: %v", err)
	}
	if got != out {
		t.Fatalf("got %q want %q", got, out)
	}
}

func TestConcatenateVideosNonAutoModeReturnsConcatError(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := fakeFFmpegAlwaysWritesOutput(t, dir)
	ffprobe := writeFakeBinary(t, dir, "ffprobe", `
path="$1"
for a in "$@"; do path="$a"; done
case "$path" in
  *out*) echo '{"format":{"duration":"2.0"},"streams":[{"codec_type":"video","codec_name":"h264","duration":"2.0","sample_rate":"","channels":0}]}' ;;
  *) echo '{"format":{"duration":"5.0"},"streams":[{"codec_type":"video","codec_name":"h264","duration":"5.0","sample_rate":"","channels":0}]}' ;;
esac
`)
	tk := &Toolkit{FFmpegBinary: ffmpeg, Prober: &Prober{Binary: ffprobe}}

	in1 := filepath.Join(dir, "in1.mp4")
	in2 := filepath.Join(dir, "in2.mp4")
	os.WriteFile(in1, []byte("a"), 0o644)
	os.WriteFile(in2, []byte("b"), 0o644)
	out := filepath.Join(dir, "out.mp4")

	_, err := tk.ConcatenateVideos(context.Background(), []string{in1, in2}, out, ConcatModeCopy)
	if err == nil {
		t.Fatal("expected validation failure to surface as an error")
	}
	var concatErr *ConcatError
	if !errors.As(err, &concatErr) {
		t.Fatalf("expected *ConcatError, got %T: %v", err, err)
	}
}

func TestConcatenateVideosAutoFallsBackToReencodeWhenCopyFailsValidation(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := fakeFFmpegAlwaysWritesOutput(t, dir)
	counter := filepath.Join(dir, "out-probe-count")

	ffprobe := writeFakeBinary(t, dir, "ffprobe", fmt.Sprintf(`
path="$1"
for a in "$@"; do path="$a"; done
case "$path" in
  *out*)
    n=0
    if [ -f %q ]; then n=$(cat %q); fi
    n=$((n+1))
    echo "$n" > %q
    if [ "$n" -eq "1" ]; then
      echo '{"format":{"duration":"2.0"},"streams":[{"codec_type":"video","codec_name":"vp9","duration":"2.0","sample_rate":"","channels":0}]}'
    else
      echo '{"format":{"duration":"10.0"},"streams":[{"codec_type":"video","codec_name":"vp9","duration":"10.0","sample_rate":"","channels":0}]}'
    fi
    ;;
  *)
    echo '{"format":{"duration":"5.0"},"streams":[{"codec_type":"video","codec_name":"vp9","duration":"5.0","sample_rate":"","channels":0}]}'
    ;;
esac
`, counter, counter, counter))

	tk := &Toolkit{FFmpegBinary: ffmpeg, Prober: &Prober{Binary: ffprobe}}

	in1 := filepath.Join(dir, "in1.mp4")
	in2 := filepath.Join(dir, "in2.mp4")
	os.WriteFile(in1, []byte("a"), 0o644)
	os.WriteFile(in2, []byte("b"), 0o644)
	out := filepath.Join(dir, "out.mp4")

	got, err := tk.ConcatenateVideos(context.Background(), []string{in1, in2}, out, ConcatModeAuto)
	if err != nil {
		t.Fatalf("ConcatenateVideos: %v", err)
	}
	if got != out {
		t.Fatalf("got %q want %q", got, out)
	}
}

func TestConcatenateVideosRejectsEmptyInput(t *testing.T) {
	tk := NewToolkit()
	if _, err := tk.ConcatenateVideos(context.Background(), nil, "/tmp/out.mp4", ConcatModeAuto); err == nil {
		t.Fatal("expected error for empty input list")
	}
}
