package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Event is one telemetry row, persisted for later analysis
type Event struct {
	User        string  `json:"user"`
	Confederate string  `json:"confederate"`
	Action      string  `json:"action"`
	Text        string  `json:"text"`
	Timestamp   string  `json:"timestamp"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Resolution  string  `json:"resolution,omitempty"`
}

var csvHeader = []string{"USER", "CONFEDERATE", "ACTION", "TEXT", "TIMESTAMP", "X", "Y", "RESOLUTION"}

type jobKind int

const (
	jobRecord jobKind = iota
	jobTranscript
	jobTutorial
)

type job struct {
	kind  jobKind
	event Event
	lines []string
	entry string
}

// userLog is a lazily opened per-(user, day) CSV file
type userLog struct {
	file   *os.File
	writer *csv.Writer
}

// CSVSink appends telemetry rows to per-(user, day) CSV files and
// writes transcript/tutorial text logs. Writes run on a single worker
// goroutine fed by a buffered channel, so a slow disk never stalls
// command processing; every write failure is logged and swallowed.
type CSVSink struct {
	dir   string
	clock clockwork.Clock

	jobs chan job
	done chan struct{}

	// worker-goroutine state, no lock needed
	logs map[string]*userLog
}

// NewCSVSink creates the sink and starts its writer goroutine
func NewCSVSink(dir string, clock clockwork.Clock) *CSVSink {
	s := &CSVSink{
		dir:   dir,
		clock: clock,
		jobs:  make(chan job, 256),
		done:  make(chan struct{}),
		logs:  make(map[string]*userLog),
	}
	go s.run()
	return s
}

// Record enqueues one telemetry row
func (s *CSVSink) Record(ev Event) {
	s.enqueue(job{kind: jobRecord, event: ev})
}

// WriteTranscript writes the cleared chat transcript to a timestamped file
func (s *CSVSink) WriteTranscript(lines []string) {
	s.enqueue(job{kind: jobTranscript, lines: lines})
}

// WriteTutorialLog writes one tutorial-completion entry to a timestamped file
func (s *CSVSink) WriteTutorialLog(entry string) {
	s.enqueue(job{kind: jobTutorial, entry: entry})
}

func (s *CSVSink) enqueue(j job) {
	select {
	case s.jobs <- j:
	default:
		log.Warn().Msg("telemetry queue full, dropping write")
	}
}

// Close drains pending writes and closes all open files
func (s *CSVSink) Close() {
	close(s.jobs)
	<-s.done
}

func (s *CSVSink) run() {
	defer close(s.done)
	for j := range s.jobs {
		switch j.kind {
		case jobRecord:
			if err := s.appendRow(j.event); err != nil {
				log.Error().Err(err).Str("user", j.event.User).Msg("failed to write telemetry row")
			}
		case jobTranscript:
			if err := s.writeTextLog("chat", strings.Join(j.lines, "\n")); err != nil {
				log.Error().Err(err).Msg("failed to write chat transcript")
			}
		case jobTutorial:
			if err := s.writeTextLog("tutorial", j.entry); err != nil {
				log.Error().Err(err).Msg("failed to write tutorial log")
			}
		}
	}
	for _, ul := range s.logs {
		ul.writer.Flush()
		ul.file.Close()
	}
}

func (s *CSVSink) appendRow(ev Event) error {
	ul, err := s.logFor(ev.User)
	if err != nil {
		return err
	}
	row := []string{
		ev.User,
		ev.Confederate,
		ev.Action,
		ev.Text,
		ev.Timestamp,
		strconv.FormatFloat(ev.X, 'f', -1, 64),
		strconv.FormatFloat(ev.Y, 'f', -1, 64),
		ev.Resolution,
	}
	if err := ul.writer.Write(row); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	ul.writer.Flush()
	return ul.writer.Error()
}

// logFor returns the open CSV for (user, today), creating it with a
// header on first write.
func (s *CSVSink) logFor(user string) (*userLog, error) {
	day := s.clock.Now().Format("2006-01-02")
	key := sanitize(user) + "_" + day
	if ul, ok := s.logs[key]; ok {
		return ul, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	path := filepath.Join(s.dir, key+".csv")
	_, statErr := os.Stat(path)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry log: %w", err)
	}

	ul := &userLog{file: file, writer: csv.NewWriter(file)}
	if os.IsNotExist(statErr) {
		if err := ul.writer.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		ul.writer.Flush()
	}
	s.logs[key] = ul
	return ul, nil
}

func (s *CSVSink) writeTextLog(prefix, content string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	name := prefix + "_" + s.clock.Now().Format("2006-01-02T15-04-05") + ".txt"
	path := filepath.Join(s.dir, name)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s log: %w", prefix, err)
	}
	defer file.Close()
	if _, err := file.WriteString(content + "\n"); err != nil {
		return fmt.Errorf("failed to write %s log: %w", prefix, err)
	}
	return nil
}

// sanitize keeps user-derived file names to a safe character set
func sanitize(name string) string {
	if name == "" {
		return "anonymous"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
