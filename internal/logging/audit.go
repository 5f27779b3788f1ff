package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENTS - one JSON line per event, each carrying a Mangle fact
// =============================================================================
// The audit trail records every state-changing moment of an engine so a run can
// be replayed or queried declaratively after the fact.

// AuditEventType names the event (and the Mangle predicate it maps to).
type AuditEventType string

const (
	AuditRoundResolved      AuditEventType = "round_resolved"      // round_event/5
	AuditPredicateDeclared  AuditEventType = "predicate_declared"  // predicate_event/5
	AuditPredicateReflected AuditEventType = "predicate_reflected" // predicate_event/5
	AuditStallDetected      AuditEventType = "stall_detected"      // stall_event/3
	AuditVocabularyExpanded AuditEventType = "vocabulary_expanded" // vocabulary_event/4
	AuditSnapshotSaved      AuditEventType = "snapshot_saved"      // snapshot_event/4
	AuditSnapshotFailed     AuditEventType = "snapshot_failed"     // snapshot_event/4
)

// AuditEvent is a structured audit entry.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"`
	EventType  AuditEventType `json:"event"`
	EngineID   string         `json:"engine"`
	Round      int            `json:"round"`
	Target     string         `json:"target,omitempty"`
	Count      int            `json:"count,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	MangleFact string         `json:"mangle"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger scopes audit events to one engine instance.
type AuditLogger struct {
	engineID string
}

// InitAudit opens the audit file in the logs directory. No-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	configMu.RLock()
	dir := logsDir
	configMu.RUnlock()

	path := filepath.Join(dir, fmt.Sprintf("%s_audit.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	fmt.Fprintf(auditFile, "# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditFor returns an audit logger bound to an engine ID.
func AuditFor(engineID string) *AuditLogger {
	return &AuditLogger{engineID: engineID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.EngineID == "" {
		event.EngineID = a.engineID
	}
	event.MangleFact = MangleFact(event)

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.Write(append(data, '\n'))
	}
}

// MangleFact renders the event as a Mangle fact.
func MangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditRoundResolved:
		return fmt.Sprintf("round_event(%d, \"%s\", %d, %d, %v).",
			e.Timestamp, e.EngineID, e.Round, e.Count, e.Success)
	case AuditPredicateDeclared, AuditPredicateReflected:
		return fmt.Sprintf("predicate_event(%d, /%s, \"%s\", %d, \"%s\").",
			e.Timestamp, e.EventType, e.EngineID, e.Round, escapeString(e.Target))
	case AuditStallDetected:
		return fmt.Sprintf("stall_event(%d, \"%s\", %d).", e.Timestamp, e.EngineID, e.Round)
	case AuditVocabularyExpanded:
		return fmt.Sprintf("vocabulary_event(%d, \"%s\", %d, \"%s\").",
			e.Timestamp, e.EngineID, e.Round, escapeString(e.Target))
	case AuditSnapshotSaved, AuditSnapshotFailed:
		return fmt.Sprintf("snapshot_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.EngineID, escapeString(e.Error))
	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\").", e.Timestamp, e.EventType, e.EngineID)
	}
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)
	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// RoundResolved records one cycle's outcome.
func (a *AuditLogger) RoundResolved(round, survivors int, bound bool) {
	a.Log(AuditEvent{EventType: AuditRoundResolved, Round: round, Count: survivors, Success: bound})
}

// PredicateDeclared records an external declaration.
func (a *AuditLogger) PredicateDeclared(round int, name string) {
	a.Log(AuditEvent{EventType: AuditPredicateDeclared, Round: round, Target: name, Success: true})
}

// PredicateReflected records a predicate synthesized by reflection.
func (a *AuditLogger) PredicateReflected(round int, name string) {
	a.Log(AuditEvent{EventType: AuditPredicateReflected, Round: round, Target: name, Success: true})
}

// StallDetected records two consecutive equal results.
func (a *AuditLogger) StallDetected(round int) {
	a.Log(AuditEvent{EventType: AuditStallDetected, Round: round, Success: true})
}

// VocabularyExpanded records a perturbation key.
func (a *AuditLogger) VocabularyExpanded(round int, key string) {
	a.Log(AuditEvent{EventType: AuditVocabularyExpanded, Round: round, Target: key, Success: true})
}

// SnapshotSaved records a persistence attempt.
func (a *AuditLogger) SnapshotSaved(round int, err error) {
	if err != nil {
		a.Log(AuditEvent{EventType: AuditSnapshotFailed, Round: round, Error: err.Error()})
		return
	}
	a.Log(AuditEvent{EventType: AuditSnapshotSaved, Round: round, Success: true})
}
