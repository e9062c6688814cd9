package edit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FuzzyLogEntry records one fuzzy-fallback attempt for offline inspection.
type FuzzyLogEntry struct {
	Timestamp            time.Time
	SearchText           string
	FoundText            string
	Similarity           float64
	ExecutionTime        time.Duration
	ExactMatchCount      int
	ExpectedReplacements int
	BelowThreshold       bool
	Diff                 string
	FileExtension        string
}

var fuzzyLogHeader = strings.Join([]string{
	"timestamp", "searchText", "foundText", "similarity",
	"executionTime_ms", "exactMatchCount", "expectedReplacements",
	"fuzzyThreshold", "belowThreshold", "diff", "searchLength",
	"foundLength", "fileExtension",
}, "\t")

// FuzzyLogger appends tab-separated entries to the fuzzy search log,
// writing the header on first use of a fresh file.
type FuzzyLogger struct {
	mu   sync.Mutex
	path string
}

// NewFuzzyLogger targets path; the file and its directory are created lazily.
func NewFuzzyLogger(path string) *FuzzyLogger {
	return &FuzzyLogger{path: path}
}

// Log writes one entry. Failures are returned so the caller can log them;
// they never fail the edit itself.
func (l *FuzzyLogger) Log(e FuzzyLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	_, statErr := os.Stat(l.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if fresh {
		if _, err := fmt.Fprintln(f, fuzzyLogHeader); err != nil {
			return err
		}
	}

	escape := func(s string) string {
		r := strings.NewReplacer("\t", `\t`, "\n", `\n`, "\r", `\r`)
		return r.Replace(s)
	}
	_, err = fmt.Fprintf(f, "%s\t%s\t%s\t%.4f\t%.2f\t%d\t%d\t%.2f\t%t\t%s\t%d\t%d\t%s\n",
		e.Timestamp.UTC().Format(time.RFC3339),
		escape(e.SearchText),
		escape(e.FoundText),
		e.Similarity,
		float64(e.ExecutionTime.Microseconds())/1000.0,
		e.ExactMatchCount,
		e.ExpectedReplacements,
		FuzzyThreshold,
		e.BelowThreshold,
		escape(e.Diff),
		len(e.SearchText),
		len(e.FoundText),
		escape(e.FileExtension),
	)
	return err
}
