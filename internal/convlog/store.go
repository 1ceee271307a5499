package convlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/resilience"
)

const defaultLimit = 50

// Entry is one recorded chat turn
type Entry struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"sessionId"`
	UserText        string    `json:"userText"`
	DisplayText     string    `json:"displayText"`
	SpeechText      string    `json:"speechText"`
	VoiceID         string    `json:"voiceId"`
	VoiceName       string    `json:"voiceName"`
	TTSEnabled      bool      `json:"ttsEnabled"`
	AudioGenerated  bool      `json:"audioGenerated"`
	SkipReason      string    `json:"skipReason,omitempty"`
	AttachmentCount int       `json:"attachmentCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SessionSummary describes one session in the log
type SessionSummary struct {
	SessionID    string    `json:"sessionId"`
	Turns        int       `json:"turns"`
	LastActivity time.Time `json:"lastActivity"`
}

// Store persists chat turns in SQLite
type Store struct {
	db     *sql.DB
	retry  *resilience.RetryConfig
	logger zerolog.Logger
}

// Open opens or creates the log database at path. A nil retry config uses a
// short schedule suited to lock contention.
func Open(path string, retry *resilience.RetryConfig, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if retry == nil {
		retry = &resilience.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    50 * time.Millisecond,
			MaxBackoff:        time.Second,
			BackoffMultiplier: 2.0,
		}
	}

	store := &Store{
		db:     db,
		retry:  retry,
		logger: logger.With().Str("component", "convlog").Logger(),
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL,
		user_text        TEXT,
		display_text     TEXT,
		speech_text      TEXT,
		voice_id         TEXT,
		voice_name       TEXT,
		tts_enabled      INTEGER NOT NULL DEFAULT 0,
		audio_generated  INTEGER NOT NULL DEFAULT 0,
		skip_reason      TEXT,
		attachment_count INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores one turn. Busy or locked databases are retried briefly.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.SessionID == "" {
		return errors.New("convlog: entry has no session ID")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	err := resilience.Retry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO turns (id, session_id, user_text, display_text, speech_text, voice_id, voice_name,
			 tts_enabled, audio_generated, skip_reason, attachment_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.SessionID, e.UserText, e.DisplayText, e.SpeechText, e.VoiceID, e.VoiceName,
			boolToInt(e.TTSEnabled), boolToInt(e.AudioGenerated), e.SkipReason, e.AttachmentCount,
			e.CreatedAt.UnixMilli(),
		)
		return err
	}, s.retry, isBusy)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}

	s.logger.Debug().
		Str("session_id", e.SessionID).
		Str("turn_id", e.ID).
		Msg("Turn recorded")
	return nil
}

// ListSession returns the most recent turns of a session, oldest first
func (s *Store) ListSession(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_text, display_text, speech_text, voice_id, voice_name,
		 tts_enabled, audio_generated, skip_reason, attachment_count, created_at
		 FROM turns WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var userText, displayText, speechText, voiceID, voiceName, skipReason sql.NullString
		var ttsEnabled, audioGenerated int
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &userText, &displayText, &speechText, &voiceID, &voiceName,
			&ttsEnabled, &audioGenerated, &skipReason, &e.AttachmentCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		e.UserText = userText.String
		e.DisplayText = displayText.String
		e.SpeechText = speechText.String
		e.VoiceID = voiceID.String
		e.VoiceName = voiceName.String
		e.SkipReason = skipReason.String
		e.TTSEnabled = ttsEnabled != 0
		e.AudioGenerated = audioGenerated != 0
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Sessions lists sessions by most recent activity
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MAX(created_at) FROM turns
		 GROUP BY session_id ORDER BY MAX(created_at) DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var summary SessionSummary
		var last int64
		if err := rows.Scan(&summary.SessionID, &summary.Turns, &last); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		summary.LastActivity = time.UnixMilli(last).UTC()
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) (bool, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
