package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTempMedia creates a small fake media file
func writeTempMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake audio data"), 0o644))
	return path
}

// writeScript installs an executable shell script called name in a temp dir
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// writeFakeWhisper installs a shell script standing in for the whisper CLI
func writeFakeWhisper(t *testing.T, body string) string {
	t.Helper()
	return writeScript(t, "whisper", body)
}

// fakeFFmpeg puts an ffmpeg stand-in first on PATH
func fakeFFmpeg(t *testing.T) {
	t.Helper()
	bin := writeScript(t, "ffmpeg", "echo 'ffmpeg version 6.1-test'\n")
	t.Setenv("PATH", filepath.Dir(bin)+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func collect(lines *[]string) LineFunc {
	return func(l string) { *lines = append(*lines, l) }
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{" 45%|████▌     | 1234/2741 [00:10<00:12]", 0.45, true},
		{"100%|██████████| 2741/2741", 1.0, true},
		{"[00:00.000 --> 00:05.000]  Hello world", 0, false},
		{"Detecting language using up to the first 30 seconds", 0, false},
		{"250%|bogus", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseProgress(tt.line)
		require.Equal(t, tt.ok, ok, tt.line)
		require.Equal(t, tt.want, got, tt.line)
	}
}

func TestParseNvidiaSMI(t *testing.T) {
	t.Run("two gpus", func(t *testing.T) {
		dev := parseNvidiaSMI("NVIDIA GeForce RTX 4090, 2048, 24564\nNVIDIA GeForce RTX 4090, 10, 24564\n")
		require.True(t, dev.Accelerated)
		require.Equal(t, "NVIDIA GeForce RTX 4090", dev.Name)
		require.Equal(t, 2, dev.Count)
		require.Equal(t, 2.0, dev.MemoryUsedGB)
		require.Equal(t, "cuda", dev.WhisperDevice())
		require.Equal(t, "GPU (NVIDIA GeForce RTX 4090)", dev.Label())
	})

	t.Run("garbage falls back to cpu", func(t *testing.T) {
		dev := parseNvidiaSMI("No devices were found\n")
		require.False(t, dev.Accelerated)
		require.Equal(t, "CPU", dev.Label())
		require.Equal(t, "cpu", dev.WhisperDevice())
	})
}

func TestMediaDetection(t *testing.T) {
	tests := []struct {
		path      string
		supported bool
		kind      string
	}{
		{"talk.mp4", true, "video"},
		{"TALK.MKV", true, "video"},
		{"call.3gp", true, "video"},
		{"memo.wav", true, "audio"},
		{"memo.m4a", true, "audio"},
		{"notes.pdf", false, "audio"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.supported, IsSupportedMediaFile(tt.path))
			require.Equal(t, tt.kind, MediaKind(tt.path))
		})
	}

	require.Len(t, MediaExtensions(), len(videoExts)+len(audioExts))
}

func TestWhisperArgs(t *testing.T) {
	w := NewWhisper(WithCacheDir("/models"), WithDevice(Device{Name: "RTX", Accelerated: true, Count: 1}))
	joined := strings.Join(w.buildArgs(Request{FilePath: "in.wav", Language: "ru", WordTimestamps: true}, ModelSmall, "/out"), " ")

	for _, want := range []string{
		"in.wav --model small",
		"--model_dir /models",
		"--device cuda",
		"--task transcribe",
		"--fp16 True",
		"--output_format json",
		"--output_dir /out",
		"--language ru",
		"--word_timestamps True",
	} {
		require.Contains(t, joined, want)
	}

	cpu := NewWhisper()
	joined = strings.Join(cpu.buildArgs(Request{FilePath: "in.wav", Language: "auto", Task: TaskTranslate}, ModelBase, "/out"), " ")
	require.NotContains(t, joined, "--language")
	require.Contains(t, joined, "--fp16 False")
	require.Contains(t, joined, "--task translate")
}

func TestParseWhisperJSON(t *testing.T) {
	data := []byte(`{"text":" Hello. World","segments":[{"id":0,"seek":0,"start":0.0,"end":1.5,"text":" Hello."},{"id":1,"start":1.5,"end":3.0,"text":" World"}],"language":"en"}`)
	res, err := parseWhisperJSON(data)
	require.NoError(t, err)
	require.Equal(t, "en", res.Language)
	require.Len(t, res.Segments, 2)
	require.Equal(t, Segment{Start: 1.5, End: 3.0, Text: " World"}, res.Segments[1])

	_, err = parseWhisperJSON([]byte("not json"))
	require.Error(t, err)
}

func TestWhisperLoadErrors(t *testing.T) {
	w := NewWhisper(WithBinary("whisperpad-no-such-binary"))

	err := w.Load(context.Background(), "huge", nil)
	require.ErrorContains(t, err, "unknown model")

	var lines []string
	err = w.Load(context.Background(), ModelBase, collect(&lines))
	require.ErrorContains(t, err, "not found")
	require.NotEmpty(t, lines)
	require.Equal(t, "Loading model base...", lines[0])
}

func TestWhisperLoad(t *testing.T) {
	fakeFFmpeg(t)
	bin := writeFakeWhisper(t, "exit 0\n")

	t.Run("cached model skips the network", func(t *testing.T) {
		cache := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(cache, ModelSmall+".pt"), []byte("weights"), 0o644))

		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer server.Close()

		w := NewWhisper(WithBinary(bin), WithCacheDir(cache), WithHubURL(server.URL))
		var lines []string
		require.NoError(t, w.Load(context.Background(), ModelSmall, collect(&lines)))

		out := strings.Join(lines, "\n")
		require.Contains(t, out, "Using ffmpeg version 6.1-test")
		require.Contains(t, out, "Model small found in cache")
		require.Contains(t, out, "Model small ready on CPU")
		require.Zero(t, hits.Load())
	})

	t.Run("uncached model with network", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
		}))
		defer server.Close()

		cache := filepath.Join(t.TempDir(), "models")
		w := NewWhisper(WithBinary(bin), WithCacheDir(cache), WithHubURL(server.URL))
		var lines []string
		require.NoError(t, w.Load(context.Background(), ModelBase, collect(&lines)))
		require.DirExists(t, cache)
		require.Contains(t, strings.Join(lines, "\n"), "will be downloaded on first use")
	})

	t.Run("uncached model with server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		w := NewWhisper(WithBinary(bin), WithCacheDir(t.TempDir()), WithHubURL(server.URL))
		err := w.Load(context.Background(), ModelBase, nil)
		require.ErrorContains(t, err, "model base is not cached and "+server.URL+" is unreachable")
		require.ErrorContains(t, err, "status 503")
	})

	t.Run("uncached model offline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		w := NewWhisper(WithBinary(bin), WithCacheDir(t.TempDir()), WithHubURL(url))
		err := w.Load(context.Background(), ModelLargeV2, nil)
		require.ErrorContains(t, err, "model large-v2 is not cached and "+url+" is unreachable")
	})
}

func TestWhisperTranscribe(t *testing.T) {
	t.Run("streams output and reads json", func(t *testing.T) {
		bin := writeFakeWhisper(t, `in="$1"; shift
while [ $# -gt 0 ]; do
  case "$1" in --output_dir) out="$2"; shift;; esac
  shift
done
echo "Detecting language using up to the first 30 seconds"
printf ' 50%%|#####     | 5/10\r100%%|##########| 10/10\n' >&2
base=$(basename "$in"); base="${base%.*}"
printf '{"text":" Hello world.","segments":[{"start":0,"end":1.5,"text":" Hello world."}],"language":"en"}' > "$out/$base.json"
`)
		media := writeTempMedia(t, "talk.mp3")
		w := NewWhisper(WithBinary(bin), WithCacheDir(t.TempDir()))

		var lines []string
		res, err := w.Transcribe(context.Background(), Request{FilePath: media}, collect(&lines))
		require.NoError(t, err)
		require.Equal(t, " Hello world.", res.Text)
		require.Len(t, res.Segments, 1)
		require.Equal(t, "en", res.Language)

		var progress int
		for _, l := range lines {
			if _, ok := ParseProgress(l); ok {
				progress++
			}
		}
		require.Equal(t, 2, progress, "progress lines in %q", lines)
	})

	t.Run("failure includes output tail", func(t *testing.T) {
		bin := writeFakeWhisper(t, "echo 'RuntimeError: CUDA out of memory' >&2\nexit 1\n")
		w := NewWhisper(WithBinary(bin))

		_, err := w.Transcribe(context.Background(), Request{FilePath: writeTempMedia(t, "talk.mp3")}, nil)
		require.ErrorContains(t, err, "CUDA out of memory")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewWhisper().Transcribe(context.Background(), Request{FilePath: "/nonexistent/file.mp3"}, nil)
		require.ErrorContains(t, err, "failed to access file")
	})
}

func TestWordsToSegments(t *testing.T) {
	words := []scribeWord{
		{Text: "Hello", Type: "word", Start: 0, End: 0.4, SpeakerID: "speaker_0"},
		{Text: " ", Type: "spacing", Start: 0.4, End: 0.5},
		{Text: "there.", Type: "word", Start: 0.5, End: 0.9, SpeakerID: "speaker_0"},
		{Text: " ", Type: "spacing", Start: 0.9, End: 1.0},
		{Text: "(laughs)", Type: "audio_event", Start: 1.0, End: 1.2},
		{Text: "So", Type: "word", Start: 1.2, End: 1.4, SpeakerID: "speaker_0"},
		{Text: " ", Type: "spacing", Start: 1.4, End: 3.0},
		{Text: "anyway", Type: "word", Start: 3.0, End: 3.5, SpeakerID: "speaker_0"},
		{Text: " ", Type: "spacing", Start: 3.5, End: 3.6},
		{Text: "Yes", Type: "word", Start: 3.6, End: 3.9, SpeakerID: "speaker_1"},
	}

	require.Equal(t, []Segment{
		{Start: 0, End: 0.9, Text: "Hello there."},
		{Start: 1.2, End: 1.4, Text: "So"},
		{Start: 3.0, End: 3.5, Text: "anyway"},
		{Start: 3.6, End: 3.9, Text: "Yes"},
	}, wordsToSegments(words))
}

func TestScribeTranscribe(t *testing.T) {
	mockResponse := scribeResponse{
		LanguageCode: "en",
		Text:         "Hello world.",
		Words: []scribeWord{
			{Text: "Hello", Type: "word", Start: 0.0, End: 0.5},
			{Text: " ", Type: "spacing", Start: 0.5, End: 0.5},
			{Text: "world.", Type: "word", Start: 0.5, End: 1.0},
		},
	}

	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/speech-to-text", r.URL.Path)
			assert.Equal(t, "test-api-key", r.Header.Get("xi-api-key"))
			assert.NoError(t, r.ParseMultipartForm(10<<20))
			assert.Equal(t, ScribeModel, r.FormValue("model_id"))
			assert.Equal(t, "ru", r.FormValue("language_code"))
			json.NewEncoder(w).Encode(mockResponse)
		}))
		defer server.Close()

		s, err := NewScribe("test-api-key", WithBaseURL(server.URL))
		require.NoError(t, err)

		res, err := s.Transcribe(context.Background(), Request{FilePath: writeTempMedia(t, "a.mp3"), Language: "ru"}, nil)
		require.NoError(t, err)
		require.Equal(t, "Hello world.", res.Text)
		require.Equal(t, "en", res.Language)
		require.Equal(t, []Segment{{Start: 0, End: 1.0, Text: "Hello world."}}, res.Segments)
	})

	t.Run("client error not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"code": "invalid_api_key", "message": "Invalid API key"})
		}))
		defer server.Close()

		s, err := NewScribe("bad-key", WithBaseURL(server.URL), WithRetries(3, time.Millisecond))
		require.NoError(t, err)
		_, err = s.Transcribe(context.Background(), Request{FilePath: writeTempMedia(t, "a.mp3")}, nil)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		require.Equal(t, "invalid_api_key", apiErr.Code)
		require.EqualValues(t, 1, calls.Load())
	})

	t.Run("server error retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(mockResponse)
		}))
		defer server.Close()

		var lines []string
		s, err := NewScribe("test-api-key", WithBaseURL(server.URL), WithRetries(2, time.Millisecond))
		require.NoError(t, err)
		res, err := s.Transcribe(context.Background(), Request{FilePath: writeTempMedia(t, "a.mp3")}, collect(&lines))
		require.NoError(t, err)
		require.Equal(t, "Hello world.", res.Text)
		require.EqualValues(t, 2, calls.Load())
		require.Contains(t, strings.Join(lines, "\n"), "retrying")
	})

	t.Run("custom http client", func(t *testing.T) {
		var used atomic.Bool
		client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			used.Store(true)
			return nil, errors.New("network is down")
		})}

		s, err := NewScribe("test-api-key", WithHTTPClient(client), WithRetries(0))
		require.NoError(t, err)
		_, err = s.Transcribe(context.Background(), Request{FilePath: writeTempMedia(t, "a.mp3")}, nil)
		require.ErrorContains(t, err, "network is down")
		require.True(t, used.Load())
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewScribe("")
		require.Error(t, err)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
