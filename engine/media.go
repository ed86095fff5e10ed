package engine

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var videoExts = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true,
	".webm": true, ".flv": true, ".wmv": true, ".m4v": true,
	".mpeg": true, ".mpg": true, ".3gp": true,
}

var audioExts = map[string]bool{
	".mp3": true, ".m4a": true, ".wav": true, ".flac": true,
	".ogg": true, ".wma": true, ".aac": true, ".opus": true,
	".aiff": true,
}

// MediaExtensions lists every accepted extension, video first
func MediaExtensions() []string {
	exts := make([]string, 0, len(videoExts)+len(audioExts))
	for _, set := range []map[string]bool{videoExts, audioExts} {
		for ext := range set {
			exts = append(exts, ext)
		}
	}
	return exts
}

// IsVideoFile checks if a file is a video based on extension
func IsVideoFile(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// IsAudioFile checks if a file is an audio file based on extension
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// IsSupportedMediaFile checks if a file is a supported audio or video format
func IsSupportedMediaFile(path string) bool {
	return IsVideoFile(path) || IsAudioFile(path)
}

// MediaKind returns "video" or "audio" for log messages
func MediaKind(path string) string {
	if IsVideoFile(path) {
		return "video"
	}
	return "audio"
}

// CheckFFmpeg checks if ffmpeg is installed and returns its version line.
// Whisper decodes every input through ffmpeg.
func CheckFFmpeg() (string, error) {
	output, err := exec.Command("ffmpeg", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w\n\n%s", err, FFmpegInstallHelp())
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0]), nil
	}
	return "ffmpeg installed", nil
}

// FFmpegInstallHelp returns platform-specific installation instructions
func FFmpegInstallHelp() string {
	switch runtime.GOOS {
	case "darwin":
		return `Install FFmpeg on macOS:
  brew install ffmpeg`
	case "linux":
		return `Install FFmpeg on Linux:
  Ubuntu/Debian: sudo apt install ffmpeg
  Fedora:        sudo dnf install ffmpeg
  Arch:          sudo pacman -S ffmpeg`
	case "windows":
		return `Install FFmpeg on Windows:
  winget install ffmpeg
Then add it to PATH.`
	default:
		return `Please install FFmpeg from: https://ffmpeg.org/download.html`
	}
}
