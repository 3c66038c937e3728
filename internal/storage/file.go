package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"xsslab/internal/domain"
)

// File names under the data and log directories
const (
	CommentsFile     = "comments.json"
	MessagesFile     = "messages.json"
	StolenCookiesLog = "stolen_cookies.log"
	BlindXSSLog      = "blind_xss.log"
)

// FileStore keeps comments and messages as JSON arrays and collector hits
// and admin views as line logs.
type FileStore struct {
	dataDir string
	logDir  string
	now     func() time.Time
	mu      sync.Mutex
}

// NewFileStore creates the data and log directories if needed.
func NewFileStore(dataDir, logDir string) (*FileStore, error) {
	for _, dir := range []string{dataDir, logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &FileStore{
		dataDir: dataDir,
		logDir:  logDir,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// =============================================================================
// Comments and messages
// =============================================================================

type textRecord struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *FileStore) AddComment(ctx context.Context, text string) (*domain.Comment, error) {
	rec, err := s.appendRecord(filepath.Join(s.dataDir, CommentsFile), text)
	if err != nil {
		return nil, fmt.Errorf("adding comment: %w", err)
	}
	return &domain.Comment{ID: rec.ID, Text: rec.Text, CreatedAt: rec.CreatedAt}, nil
}

func (s *FileStore) ListComments(ctx context.Context) ([]domain.Comment, error) {
	s.mu.Lock()
	records, err := readRecords(filepath.Join(s.dataDir, CommentsFile))
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("loading comments: %w", err)
	}

	comments := make([]domain.Comment, len(records))
	for i, r := range records {
		comments[i] = domain.Comment{ID: r.ID, Text: r.Text, CreatedAt: r.CreatedAt}
	}
	return comments, nil
}

func (s *FileStore) AddMessage(ctx context.Context, text string) (*domain.Message, error) {
	rec, err := s.appendRecord(filepath.Join(s.dataDir, MessagesFile), text)
	if err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}
	return &domain.Message{ID: rec.ID, Text: rec.Text, CreatedAt: rec.CreatedAt}, nil
}

func (s *FileStore) ListMessages(ctx context.Context) ([]domain.Message, error) {
	s.mu.Lock()
	records, err := readRecords(filepath.Join(s.dataDir, MessagesFile))
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	messages := make([]domain.Message, len(records))
	for i, r := range records {
		messages[i] = domain.Message{ID: r.ID, Text: r.Text, CreatedAt: r.CreatedAt}
	}
	return messages, nil
}

func (s *FileStore) appendRecord(path, text string) (textRecord, error) {
	if text == "" {
		return textRecord{}, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := readRecords(path)
	if err != nil {
		return textRecord{}, err
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	rec := textRecord{ID: nextID(ids), Text: text, CreatedAt: s.now()}
	records = append(records, rec)

	if err := writeRecords(path, records); err != nil {
		return textRecord{}, err
	}
	return rec, nil
}

// readRecords returns an empty list for a missing or blank file.
func readRecords(path string) ([]textRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []textRecord{}, nil
		}
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []textRecord{}, nil
	}

	var records []textRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	if records == nil {
		records = []textRecord{}
	}
	return records, nil
}

// writeRecords replaces path atomically.
func writeRecords(path string, records []textRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// =============================================================================
// Line logs
// =============================================================================

// RecordStolenCookie appends "[<ts>] IP=<ip> c=<value>".
func (s *FileStore) RecordStolenCookie(ctx context.Context, entry domain.StolenCookie) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	ip := strings.Join(strings.Fields(entry.IP), "")
	line := fmt.Sprintf("[%s] IP=%s c=%s\n",
		entry.Timestamp.UTC().Format(time.RFC3339Nano), singleLine(ip), singleLine(entry.Cookie))

	if err := s.appendLine(filepath.Join(s.logDir, StolenCookiesLog), line); err != nil {
		return fmt.Errorf("recording stolen cookie: %w", err)
	}
	return nil
}

// ListStolenCookies parses the collector log. Lines that do not follow the
// expected shape are kept with whatever fields could be read.
func (s *FileStore) ListStolenCookies(ctx context.Context) ([]domain.StolenCookie, error) {
	lines, err := s.readLines(filepath.Join(s.logDir, StolenCookiesLog))
	if err != nil {
		return nil, fmt.Errorf("reading stolen cookies: %w", err)
	}

	entries := make([]domain.StolenCookie, 0, len(lines))
	for _, line := range lines {
		ts, remainder := splitTimestamp(line)
		entry := domain.StolenCookie{Timestamp: ts}

		// The cookie is the last field and may contain spaces.
		for remainder != "" {
			field, rest, _ := strings.Cut(remainder, " ")
			if strings.HasPrefix(field, "IP=") {
				entry.IP = strings.TrimPrefix(field, "IP=")
				remainder = strings.TrimSpace(rest)
				continue
			}
			if strings.HasPrefix(field, "c=") {
				entry.Cookie = strings.TrimPrefix(remainder, "c=")
				break
			}
			remainder = strings.TrimSpace(rest)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RecordAdminView appends "[<ts>] admin_view panel=<panel> messages=<n>".
func (s *FileStore) RecordAdminView(ctx context.Context, view domain.AdminView) error {
	if view.Timestamp.IsZero() {
		view.Timestamp = s.now()
	}
	line := fmt.Sprintf("[%s] admin_view panel=%s messages=%d\n",
		view.Timestamp.UTC().Format(time.RFC3339Nano), singleLine(string(view.Panel)), view.MessageCount)

	if err := s.appendLine(filepath.Join(s.logDir, BlindXSSLog), line); err != nil {
		return fmt.Errorf("recording admin view: %w", err)
	}
	return nil
}

// ListAdminViews parses the admin view log. Lines without a panel field
// are message panel views.
func (s *FileStore) ListAdminViews(ctx context.Context) ([]domain.AdminView, error) {
	lines, err := s.readLines(filepath.Join(s.logDir, BlindXSSLog))
	if err != nil {
		return nil, fmt.Errorf("reading admin views: %w", err)
	}

	views := make([]domain.AdminView, 0, len(lines))
	for _, line := range lines {
		ts, remainder := splitTimestamp(line)
		view := domain.AdminView{Timestamp: ts, Panel: domain.AdminPanelMessages}
		for _, field := range strings.Fields(remainder) {
			switch {
			case strings.HasPrefix(field, "panel="):
				view.Panel = domain.AdminPanel(strings.TrimPrefix(field, "panel="))
			case strings.HasPrefix(field, "messages="):
				view.MessageCount, _ = strconv.Atoi(strings.TrimPrefix(field, "messages="))
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *FileStore) appendLine(path, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readLines returns the non-blank, trimmed lines of path.
func (s *FileStore) readLines(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// splitTimestamp splits "[ts] rest". An unparseable timestamp is zero.
func splitTimestamp(line string) (time.Time, string) {
	if !strings.HasPrefix(line, "[") {
		return time.Time{}, line
	}
	end := strings.Index(line, "]")
	if end == -1 {
		return time.Time{}, line
	}
	ts, _ := time.Parse(time.RFC3339Nano, line[1:end])
	return ts, strings.TrimSpace(line[end+1:])
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}
