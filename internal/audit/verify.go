package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid       bool           `json:"valid"`
	Lines       int            `json:"lines"`
	Levels      map[string]int `json:"threat_levels,omitempty"`
	Escalations int            `json:"escalations"`
	Overrides   int            `json:"overrides"`
	Error       string         `json:"error,omitempty"`
	ErrorLine   int            `json:"error_line,omitempty"`
}

// Verify walks the hash chain of the log at path and reports the first
// broken link, if any. Counts cover the lines read before a break.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	res := VerifyResult{Levels: map[string]int{}}
	fail := func(line int, format string, args ...any) VerifyResult {
		res.Valid = false
		res.Error = fmt.Sprintf(format, args...)
		res.ErrorLine = line
		return res
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	expected := GenesisHash
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fail(lineNum, "parse error: %v", err)
		}
		if entry.PrevHash != expected {
			if lineNum == 1 {
				return fail(1, "first entry prev_hash is %q, expected genesis hash", entry.PrevHash)
			}
			return fail(lineNum, "hash mismatch: expected %s, got %s", expected, entry.PrevHash)
		}

		res.Lines = lineNum
		res.Levels[entry.ThreatLevel]++
		if entry.Escalation {
			res.Escalations++
		}
		if entry.OriginalLevel != "" && entry.OriginalLevel != entry.ThreatLevel {
			res.Overrides++
		}
		expected = HashLine(line)
	}

	if err := scanner.Err(); err != nil {
		return fail(0, "scan: %v", err)
	}

	res.Valid = true
	return res
}
