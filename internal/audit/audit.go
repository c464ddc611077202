// Package audit implements the AuditLog (C6): an append-only, sanitized
// security journal, separate from phantomvault's operational diagnostics
// logger (internal/logging) - security events never share a sink with
// routine debug/info chatter, even though both ultimately write through the
// same zerolog backend.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"phantomvault/internal/errs"
	"phantomvault/internal/logging"
	"phantomvault/internal/store"
)

// Severity levels. Only Critical triggers the synchronous callback.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event kinds, matching the vocabulary used across the catalog, vault, and
// profile packages exactly.
const (
	KindAuthFailure             = "AuthFailure"
	KindAuthSuccess             = "AuthSuccess"
	KindRateLimitBreach         = "RateLimitBreach"
	KindEncryptionFailure       = "EncryptionFailure"
	KindDecryptionFailure       = "DecryptionFailure"
	KindVaultCorruptionDetected = "VaultCorruptionDetected"
	KindUnauthorizedAccess      = "UnauthorizedAccess"
	KindConfigChange            = "ConfigChange"
	KindPrivilegeChange         = "PrivilegeChange"
	KindRecoveryRedemption      = "RecoveryRedemption"
	KindInfoEvent               = "InfoEvent"
)

// Event is one journal record.
type Event struct {
	ID              string            `json:"id"`
	Kind            string            `json:"kind"`
	Severity        Severity          `json:"severity"`
	ProfileID       string            `json:"profile_id,omitempty"`
	Description     string            `json:"description"`
	Details         map[string]string `json:"details,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	SourceComponent string            `json:"source_component,omitempty"`
}

var (
	reHomePath      = regexp.MustCompile(`(?:/home/[^/\s]+|/Users/[^/\s]+)(?:/[^\s"']*)?`)
	rePasswordField = regexp.MustCompile(`(?i)password\s*=\s*\S+`)
	reKeyField      = regexp.MustCompile(`(?i)\bkey\s*=\s*\S+`)
	reHexRun        = regexp.MustCompile(`\b[0-9a-fA-F]{20,}\b`)
	reBase64Run     = regexp.MustCompile(`\b[A-Za-z0-9+/]{24,}={0,2}\b`)
	reRecoveryToken = regexp.MustCompile(`\b[A-Z2-7]{2,}(?:-[A-Z2-7]{2,}){3,}\b`)
)

const redacted = "[redacted]"

// sanitize redacts filesystem paths under a user's home directory,
// password=/key=-shaped fields, long hex/base64 runs, and recovery-token-
// shaped grouped strings - applied to an Event's Description and to every
// Details key and value before it is ever written to disk (id, kind,
// severity and profile id are written as given).
func sanitize(s string) string {
	s = reHomePath.ReplaceAllString(s, redacted)
	s = rePasswordField.ReplaceAllString(s, "password="+redacted)
	s = reKeyField.ReplaceAllString(s, "key="+redacted)
	s = reRecoveryToken.ReplaceAllString(s, redacted)
	s = reHexRun.ReplaceAllString(s, redacted)
	s = reBase64Run.ReplaceAllString(s, redacted)
	return s
}

func sanitizeDetails(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[sanitize(k)] = sanitize(v)
	}
	return out
}

// Log is the append-only security journal.
type Log struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	logger     logging.Logger
	onCritical func(Event)
	retention  time.Duration
	now        func() time.Time
}

// New opens (creating if needed) the journal file at path.
func New(path string, retention time.Duration) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, store.FilePermissions)
	if err != nil {
		return nil, errs.NewIOOpError("open", path, err)
	}

	return &Log{
		path:      path,
		file:      f,
		logger:    logging.NewZerologLogger(f, logging.LevelDebug),
		retention: retention,
		now:       time.Now,
	}, nil
}

// RegisterCriticalCallback installs fn to be invoked synchronously,
// before Record returns, for every Severity=Critical event.
func (l *Log) RegisterCriticalCallback(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCritical = fn
}

// Record sanitizes and appends one event. An Info event never reaches the
// critical callback; a Critical event is delivered to the callback
// synchronously before this call returns.
func (l *Log) Record(kind, severity, profileID, description string, details map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		Severity:    Severity(severity),
		ProfileID:   profileID,
		Description: sanitize(description),
		Details:     sanitizeDetails(details),
		Timestamp:   l.now(),
	}

	l.writeLocked(ev)

	if ev.Severity == SeverityCritical && l.onCritical != nil {
		l.onCritical(ev)
	}
}

func (l *Log) writeLocked(ev Event) {
	fields := []logging.Field{
		logging.String("id", ev.ID),
		logging.String("kind", ev.Kind),
		logging.String("severity", string(ev.Severity)),
	}
	if ev.ProfileID != "" {
		fields = append(fields, logging.String("profile_id", ev.ProfileID))
	}
	for k, v := range ev.Details {
		fields = append(fields, logging.String("detail_"+k, v))
	}

	switch ev.Severity {
	case SeverityCritical:
		l.logger.Error(ev.Description, fields...)
	case SeverityWarning:
		l.logger.Warn(ev.Description, fields...)
	default:
		l.logger.Info(ev.Description, fields...)
	}
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Filter narrows a Query. Zero-value fields are not applied.
type Filter struct {
	ProfileID string
	Kind      string
	Since     time.Time
}

func (f Filter) matches(ev Event) bool {
	if f.ProfileID != "" && ev.ProfileID != f.ProfileID {
		return false
	}
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Query reads the journal from disk and returns every event matching
// filter, oldest first (append order).
func (l *Log) Query(filter Filter) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAllLocked()
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if filter.matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Export writes the full sanitized journal to w as a JSON array.
func (l *Log) Export(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAllLocked()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return errs.Wrap(err, "marshal audit export")
	}
	_, err = w.Write(data)
	return err
}

func (l *Log) readAllLocked() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.NewIOOpError("open", l.path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var raw map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			continue // skip a malformed line rather than fail the whole read
		}
		events = append(events, eventFromRaw(raw))
	}
	return events, scanner.Err()
}

func eventFromRaw(raw map[string]any) Event {
	ev := Event{Details: map[string]string{}}
	if v, ok := raw["id"].(string); ok {
		ev.ID = v
	}
	if v, ok := raw["kind"].(string); ok {
		ev.Kind = v
	}
	if v, ok := raw["severity"].(string); ok {
		ev.Severity = Severity(v)
	}
	if v, ok := raw["profile_id"].(string); ok {
		ev.ProfileID = v
	}
	if v, ok := raw["message"].(string); ok {
		ev.Description = v
	}
	if v, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			ev.Timestamp = t
		}
	}
	for k, v := range raw {
		const prefix = "detail_"
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			if s, ok := v.(string); ok {
				ev.Details[k[len(prefix):]] = s
			}
		}
	}
	if len(ev.Details) == 0 {
		ev.Details = nil
	}
	return ev
}

// StartRetentionSweep runs a periodic task that compacts the journal down
// to events within the retention window, stopping cooperatively when ctx is
// cancelled (the hourly retention task).
func (l *Log) StartRetentionSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

func (l *Log) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAllLocked()
	if err != nil {
		return
	}

	cutoff := l.now().Add(-l.retention)
	kept := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}

	if len(kept) == len(events) {
		return
	}

	if err := l.rewriteLocked(kept); err != nil {
		return
	}
}

// rewriteLocked atomically replaces the journal file's contents with kept,
// then reopens the append handle - the one place this journal is rewritten
// wholesale rather than appended to.
func (l *Log) rewriteLocked(kept []Event) error {
	var buf []byte
	for _, ev := range kept {
		rec := map[string]any{
			"level":      string(ev.Severity),
			"time":       ev.Timestamp.Format(time.RFC3339),
			"message":    ev.Description,
			"id":         ev.ID,
			"kind":       ev.Kind,
			"severity":   string(ev.Severity),
			"profile_id": ev.ProfileID,
		}
		for k, v := range ev.Details {
			rec["detail_"+k] = v
		}
		line, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	if err := store.WriteAtomicBytes(l.path, buf); err != nil {
		return err
	}

	l.file.Close()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, store.FilePermissions)
	if err != nil {
		return errs.NewIOOpError("reopen", l.path, err)
	}
	l.file = f
	l.logger = logging.NewZerologLogger(f, logging.LevelDebug)
	return nil
}
