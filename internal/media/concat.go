package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ConcatMode selects which concatenation strategy (or strategy ladder) runs.
type ConcatMode string

const (
	ConcatModeAuto     ConcatMode = "auto"
	ConcatModeCopy     ConcatMode = "copy"
	ConcatModeTS       ConcatMode = "ts"
	ConcatModeReencode ConcatMode = "reencode"
)

// ConcatError reports every strategy attempted and why each failed: the
// whole ladder in auto mode, the single strategy in any other mode.
type ConcatError struct {
	Reasons []string
}

func (e *ConcatError) Error() string {
	return fmt.Sprintf("media: concatenation failed: %s", strings.Join(e.Reasons, "; "))
}

var tsEligibleCodecs = map[string]bool{"h264": true, "hevc": true}

// ConcatenateVideos concatenates paths into out using mode, returning out on
// success. In auto mode it tries copy, then ts (if every input is
// TS-eligible), then reencode, accumulating failure reasons; a non-auto mode
// attempts only that one strategy and returns its failure as a ConcatError
// with a single reason.
func (t *Toolkit) ConcatenateVideos(ctx context.Context, paths []string, out string, mode ConcatMode) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("media: no inputs to concatenate")
	}
	if mode == "" {
		mode = ConcatModeAuto
	}

	probes := make([]ProbeResult, len(paths))
	expected := 0.0
	allTSEligible := true
	for i, p := range paths {
		probe, err := t.Prober.Probe(ctx, p)
		if err != nil {
			return "", fmt.Errorf("media: probe input %d (%s): %w", i, p, err)
		}
		probes[i] = probe
		expected += probe.EffectiveDuration()
		if probe.VideoStream == nil || !tsEligibleCodecs[probe.VideoStream.CodecName] {
			allTSEligible = false
		}
	}

	tryStrategy := func(name string, fn func() error) error {
		_ = os.Remove(out)
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if reason, ok := t.validateConcat(ctx, out, expected); !ok {
			return fmt.Errorf("%s: validation failed: %s", name, reason)
		}
		return nil
	}

	if mode != ConcatModeAuto {
		var err error
		switch mode {
		case ConcatModeCopy:
			err = tryStrategy("copy", func() error { return t.copyConcat(ctx, paths, out) })
		case ConcatModeTS:
			err = tryStrategy("ts", func() error { return t.tsConcat(ctx, paths, probes, out) })
		case ConcatModeReencode:
			err = tryStrategy("reencode", func() error { return t.reencodeConcat(ctx, paths, probes, out) })
		default:
			return "", fmt.Errorf("media: unknown concat mode %q", mode)
		}
		if err != nil {
			return "", &ConcatError{Reasons: []string{err.Error()}}
		}
		return out, nil
	}

	var reasons []string

	if err := tryStrategy("copy", func() error { return t.copyConcat(ctx, paths, out) }); err == nil {
		return out, nil
	} else {
		reasons = append(reasons, err.Error())
	}

	if allTSEligible {
		if err := tryStrategy("ts", func() error { return t.tsConcat(ctx, paths, probes, out) }); err == nil {
			return out, nil
		} else {
			reasons = append(reasons, err.Error())
		}
	} else {
		reasons = append(reasons, "ts: skipped, not all inputs are h264/hevc")
	}

	if err := tryStrategy("reencode", func() error { return t.reencodeConcat(ctx, paths, probes, out) }); err == nil {
		return out, nil
	} else {
		reasons = append(reasons, err.Error())
	}

	return "", &ConcatError{Reasons: reasons}
}

func escapeConcatListPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

func (t *Toolkit) copyConcat(ctx context.Context, paths []string, out string) error {
	listFile, err := os.CreateTemp(filepath.Dir(out), ".concat-list-*.txt")
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer os.Remove(listFile.Name())

	var sb strings.Builder
	sb.WriteString("ffconcat version 1.0\n")
	for _, p := range paths {
		fmt.Fprintf(&sb, "file '%s'\n", escapeConcatListPath(p))
	}
	if _, err := listFile.WriteString(sb.String()); err != nil {
		listFile.Close()
		return fmt.Errorf("write concat list: %w", err)
	}
	listFile.Close()

	args := []string{"-hide_banner", "-loglevel", "error", "-f", "concat", "-safe", "0", "-i", listFile.Name(), "-c", "copy", "-y", out}
	return runFFmpeg(ctx, t.FFmpegBinary, args...)
}

func (t *Toolkit) tsConcat(ctx context.Context, paths []string, probes []ProbeResult, out string) error {
	tmpDir, err := os.MkdirTemp(filepath.Dir(out), ".ts-concat-*")
	if err != nil {
		return fmt.Errorf("create ts workdir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tsFiles := make([]string, len(paths))
	for i, p := range paths {
		tsPath := filepath.Join(tmpDir, fmt.Sprintf("part_%03d.ts", i))
		bsf := "h264_mp4toannexb"
		if probes[i].VideoStream != nil && probes[i].VideoStream.CodecName == "hevc" {
			bsf = "hevc_mp4toannexb"
		}
		args := []string{
			"-hide_banner", "-loglevel", "error",
			"-i", p, "-c", "copy", "-bsf:v", bsf,
			"-f", "mpegts", "-y", tsPath,
		}
		if err := runFFmpeg(ctx, t.FFmpegBinary, args...); err != nil {
			return fmt.Errorf("remux %s to ts: %w", p, err)
		}
		tsFiles[i] = tsPath
	}

	concatURL := "concat:" + strings.Join(tsFiles, "|")
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", concatURL, "-c", "copy",
		"-bsf:a", "aac_adtstoasc", "-movflags", "+faststart", "-y", out,
	}
	return runFFmpeg(ctx, t.FFmpegBinary, args...)
}

func (t *Toolkit) reencodeConcat(ctx context.Context, paths []string, probes []ProbeResult, out string) error {
	hasAnyAudio := false
	fallbackSR := 44100
	fallbackLayout := "stereo"
	for _, p := range probes {
		if p.AudioStream != nil {
			hasAnyAudio = true
			if p.AudioStream.SampleRate > 0 {
				fallbackSR = p.AudioStream.SampleRate
			}
			fallbackLayout = channelLayout(p.AudioStream.Channels)
			break
		}
	}

	var inputArgs []string
	var filters []string
	var vLabels, aLabels []string

	for i, p := range paths {
		inputArgs = append(inputArgs, "-i", p)
		d := probes[i].EffectiveDuration()

		vLabel := fmt.Sprintf("v%d", i)
		filters = append(filters, fmt.Sprintf("[%d:v]trim=duration=%.3f,setpts=PTS-STARTPTS[%s]", i, d, vLabel))
		vLabels = append(vLabels, "["+vLabel+"]")

		if hasAnyAudio {
			aLabel := fmt.Sprintf("a%d", i)
			if probes[i].AudioStream != nil {
				filters = append(filters, fmt.Sprintf("[%d:a]atrim=duration=%.3f,asetpts=PTS-STARTPTS[%s]", i, d, aLabel))
			} else {
				filters = append(filters, fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d,atrim=duration=%.3f,asetpts=PTS-STARTPTS[%s]", fallbackLayout, fallbackSR, d, aLabel))
			}
			aLabels = append(aLabels, "["+aLabel+"]")
		}
	}

	n := len(paths)
	aFlag := 0
	var concatInputs strings.Builder
	if hasAnyAudio {
		aFlag = 1
		for i := range paths {
			concatInputs.WriteString(vLabels[i])
			concatInputs.WriteString(aLabels[i])
		}
	} else {
		for _, v := range vLabels {
			concatInputs.WriteString(v)
		}
	}

	concatFilter := fmt.Sprintf("%sconcat=n=%d:v=1:a=%d[vout]", concatInputs.String(), n, aFlag)
	if hasAnyAudio {
		concatFilter += "[aout]"
	}
	filters = append(filters, concatFilter)

	args := append([]string{"-hide_banner", "-loglevel", "error"}, inputArgs...)
	args = append(args, "-filter_complex", strings.Join(filters, ";"))
	args = append(args, "-map", "[vout]")
	if hasAnyAudio {
		args = append(args, "-map", "[aout]", "-c:a", "aac", "-b:a", "128k")
	}
	args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-crf", "18", "-pix_fmt", "yuv420p", "-movflags", "+faststart", "-y", out)

	return runFFmpeg(ctx, t.FFmpegBinary, args...)
}

// channelLayout maps an ffprobe channel count to the ffmpeg anullsrc
// channel_layout token, defaulting to stereo for anything unexpected.
func channelLayout(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return "stereo"
	}
}

func runFFmpeg(ctx context.Context, binary string, args ...string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", binary, err, truncateOutput(output))
	}
	return nil
}

func truncateOutput(b []byte) string {
	const max = 2000
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}

// validateConcat checks the produced output's duration and AV-sync against
// expected, returning a short failure reason when it rejects.
func (t *Toolkit) validateConcat(ctx context.Context, out string, expected float64) (string, bool) {
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return "output missing or empty", false
	}

	probe, err := t.Prober.Probe(ctx, out)
	if err != nil {
		return "probe of output failed", false
	}

	primary := probe.FormatDurationS
	if probe.VideoStream != nil && probe.VideoStream.DurationS > 0 {
		primary = probe.VideoStream.DurationS
	}

	tolerance := math.Max(1.0, 0.03*expected)
	if math.Abs(primary-expected) > tolerance {
		return fmt.Sprintf("duration_mismatch: primary=%.2fs expected=%.2fs tolerance=%.2fs", primary, expected, tolerance), false
	}

	if probe.VideoStream != nil && probe.AudioStream != nil {
		if math.Abs(probe.VideoStream.DurationS-probe.AudioStream.DurationS) > 0.5 {
			return fmt.Sprintf("av_sync_mismatch: video=%.2fs audio=%.2fs", probe.VideoStream.DurationS, probe.AudioStream.DurationS), false
		}
	}

	return "", true
}
