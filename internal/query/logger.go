package query

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"lecture-rag/internal/domain"
)

// Logger appends query records to a JSONL file, one record per line.
// Append is the only supported mutation; entries are never edited or
// removed. Clear truncates the whole file and exists only for the
// administrative entry point.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger creates a query logger writing to path, creating parent
// directories as needed.
func NewLogger(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Logger{path: path}, nil
}

// Append writes one record as a JSON line. O_APPEND writes keep
// concurrent processes from interleaving partial lines.
func (l *Logger) Append(rec domain.QueryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// Recent returns up to n records, most recent first.
func (l *Logger) Recent(n int) ([]domain.QueryRecord, error) {
	records, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	// most recent first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Stats summarizes the whole log.
type Stats struct {
	TotalQueries       int
	AvgResponseSeconds float64
	Courses            []string
}

// Stats aggregates over every logged record.
func (l *Logger) Stats() (Stats, error) {
	records, err := l.readAll()
	if err != nil {
		return Stats{}, err
	}
	var total float64
	courses := map[string]bool{}
	for _, r := range records {
		total += r.ResponseSeconds
		if r.Course != "" {
			courses[r.Course] = true
		}
	}
	s := Stats{TotalQueries: len(records)}
	if len(records) > 0 {
		s.AvgResponseSeconds = round2(total / float64(len(records)))
	}
	for c := range courses {
		s.Courses = append(s.Courses, c)
	}
	sort.Strings(s.Courses)
	return s, nil
}

// Clear truncates the log. Administrative use only.
func (l *Logger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := os.Remove(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Logger) readAll() ([]domain.QueryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var records []domain.QueryRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.QueryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// a torn or foreign line does not invalidate the rest
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
