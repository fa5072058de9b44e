// Package audit records security-relevant terminal events: verdicts, key
// lifecycle, credential wipes, biometric outcomes and attestation failures.
// Events carry only identifiers and reasons, never key material, tokens or
// plaintext.
package audit

import (
	"strconv"
	"time"
)

// Severity is an RFC 5424 severity level.
type Severity int

const (
	SeverityEmergency Severity = 0
	SeverityAlert     Severity = 1
	SeverityCritical  Severity = 2
	SeverityError     Severity = 3
	SeverityWarning   Severity = 4
	SeverityNotice    Severity = 5
	SeverityInfo      Severity = 6
	SeverityDebug     Severity = 7
)

var severityNames = [...]string{"EMERGENCY", "ALERT", "CRITICAL", "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "UNKNOWN"
	}
	return severityNames[s]
}

// EventType names an audit event. It doubles as the syslog MSGID.
type EventType string

const (
	EventSecurityVerdict      EventType = "security.verdict"
	EventKeyRotate            EventType = "key.rotate"
	EventKeyDelete            EventType = "key.delete"
	EventCredentialsClearAuth EventType = "credentials.clear_auth"
	EventCredentialsWipe      EventType = "credentials.wipe"
	EventBiometricResult      EventType = "biometric.result"
	EventIntegrityFailure     EventType = "integrity.failure"
	EventGateDeny             EventType = "gate.deny"
)

// AllEventTypes lists every defined event type.
func AllEventTypes() []EventType {
	return []EventType{
		EventSecurityVerdict,
		EventKeyRotate,
		EventKeyDelete,
		EventCredentialsClearAuth,
		EventCredentialsWipe,
		EventBiometricResult,
		EventIntegrityFailure,
		EventGateDeny,
	}
}

var defaultSeverity = map[EventType]Severity{
	EventSecurityVerdict:      SeverityInfo,
	EventKeyRotate:            SeverityNotice,
	EventKeyDelete:            SeverityWarning,
	EventCredentialsClearAuth: SeverityNotice,
	EventCredentialsWipe:      SeverityWarning,
	EventBiometricResult:      SeverityInfo,
	EventIntegrityFailure:     SeverityWarning,
	EventGateDeny:             SeverityWarning,
}

// SeverityFor returns the default severity of et. Unknown types are
// reported as warnings.
func SeverityFor(et EventType) Severity {
	if s, ok := defaultSeverity[et]; ok {
		return s
	}
	return SeverityWarning
}

// Event is a single audit record.
type Event struct {
	Type      EventType
	Severity  Severity
	Timestamp time.Time
	ActorID   string // device id or key alias, depending on the event
	RequestID string
	Details   map[string]string
}

// New builds an event of type et stamped now with its default severity.
func New(et EventType, actorID string, details map[string]string) Event {
	if details == nil {
		details = map[string]string{}
	}
	return Event{
		Type:      et,
		Severity:  SeverityFor(et),
		Timestamp: time.Now(),
		ActorID:   actorID,
		Details:   details,
	}
}

// NewSecurityVerdict records the outcome of a policy evaluation. A blocking
// verdict is raised to SeverityCritical.
func NewSecurityVerdict(secure bool, failures, warnings []string, buildMode string, strict bool) Event {
	ev := New(EventSecurityVerdict, "", map[string]string{
		"secure":     strconv.FormatBool(secure),
		"failures":   joinKinds(failures),
		"warnings":   joinKinds(warnings),
		"build_mode": buildMode,
		"strict":     strconv.FormatBool(strict),
	})
	if !secure {
		ev.Severity = SeverityCritical
	}
	return ev
}

// NewKeyRotate records an irreversible key rotation.
func NewKeyRotate(alias string) Event {
	return New(EventKeyRotate, alias, map[string]string{"alias": alias})
}

// NewKeyDelete records a key deletion.
func NewKeyDelete(alias string) Event {
	return New(EventKeyDelete, alias, map[string]string{"alias": alias})
}

// NewCredentialsClearAuth records a logout-style wipe of session fields.
func NewCredentialsClearAuth(fields int) Event {
	return New(EventCredentialsClearAuth, "", map[string]string{"fields": strconv.Itoa(fields)})
}

// NewCredentialsWipe records a full credential store wipe.
func NewCredentialsWipe() Event {
	return New(EventCredentialsWipe, "", nil)
}

// NewBiometricResult records the terminal outcome of an authentication session.
func NewBiometricResult(kind string, code int) Event {
	ev := New(EventBiometricResult, "", map[string]string{
		"result": kind,
		"code":   strconv.Itoa(code),
	})
	if kind != "success" {
		ev.Severity = SeverityNotice
	}
	return ev
}

// NewIntegrityFailure records an attestation request that did not yield a token.
func NewIntegrityFailure(code int, category string) Event {
	return New(EventIntegrityFailure, "", map[string]string{
		"code":     strconv.Itoa(code),
		"category": category,
	})
}

// NewGateDeny records an action refused by the authorization gate.
func NewGateDeny(action, reason, requestID string) Event {
	ev := New(EventGateDeny, "", map[string]string{
		"action": action,
		"reason": reason,
	})
	ev.RequestID = requestID
	return ev
}

func joinKinds(kinds []string) string {
	if len(kinds) == 0 {
		return "none"
	}
	out := kinds[0]
	for _, k := range kinds[1:] {
		out += "," + k
	}
	return out
}
