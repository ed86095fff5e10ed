package engine

import (
	"bytes"
	"regexp"
	"strconv"
)

// tqdm bars look like " 45%|████▌     | 1234/2741 [00:10<00:12, ...]"
var percentPattern = regexp.MustCompile(`(\d{1,3})%\|`)

// ParseProgress extracts a completion fraction from a progress-bar line
func ParseProgress(line string) (float64, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil || pct > 100 {
		return 0, false
	}
	return float64(pct) / 100, true
}

// scanLines is bufio.ScanLines that also breaks on carriage returns, so
// progress bars redrawn in place arrive as separate lines
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
