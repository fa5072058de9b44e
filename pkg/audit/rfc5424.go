package audit

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Facility is an RFC 5424 facility code.
type Facility int

const (
	FacAuth   Facility = 4
	FacLocal0 Facility = 16
)

// sdID is the structured-data element id for termguard events. The suffix
// is a private enterprise number placeholder as required for non-IANA ids.
const sdID = "termguard@32473"

// SDParam is one PARAM-NAME="PARAM-VALUE" pair.
type SDParam struct {
	Name  string
	Value string
}

// SDElement is one bracketed structured-data element.
type SDElement struct {
	ID     string
	Params []SDParam
}

// Message is a syslog message prior to serialization.
type Message struct {
	Facility  Facility
	Severity  Severity
	Timestamp time.Time
	Hostname  string
	AppName   string
	ProcessID string
	MessageID string
	SD        []SDElement
	Text      string
}

// header field limits from RFC 5424 section 6.
const (
	maxHostname = 255
	maxAppName  = 48
	maxProcID   = 128
	maxMsgID    = 32
)

// FormatMessage renders m in RFC 5424 wire format without a trailing newline.
// Empty header fields become the NILVALUE "-".
func FormatMessage(m Message) []byte {
	var b strings.Builder
	b.Grow(256)

	b.WriteByte('<')
	b.WriteString(strconv.Itoa(int(m.Facility)*8 + int(m.Severity)))
	b.WriteString(">1 ")

	if m.Timestamp.IsZero() {
		b.WriteByte('-')
	} else {
		b.WriteString(m.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"))
	}

	for _, f := range [...]struct {
		v   string
		max int
	}{
		{m.Hostname, maxHostname},
		{m.AppName, maxAppName},
		{m.ProcessID, maxProcID},
		{m.MessageID, maxMsgID},
	} {
		b.WriteByte(' ')
		b.WriteString(headerField(f.v, f.max))
	}

	b.WriteByte(' ')
	if len(m.SD) == 0 {
		b.WriteByte('-')
	}
	for _, el := range m.SD {
		b.WriteByte('[')
		b.WriteString(el.ID)
		for _, p := range el.Params {
			b.WriteByte(' ')
			b.WriteString(p.Name)
			b.WriteString(`="`)
			b.WriteString(escapeParamValue(p.Value))
			b.WriteByte('"')
		}
		b.WriteByte(']')
	}

	if m.Text != "" {
		b.WriteByte(' ')
		b.WriteString(m.Text)
	}
	return []byte(b.String())
}

// headerField truncates v to max and replaces characters outside PRINTUSASCII
// so a hostile value cannot break header framing.
func headerField(v string, max int) string {
	if v == "" {
		return "-"
	}
	if len(v) > max {
		v = v[:max]
	}
	return strings.Map(func(r rune) rune {
		if r < 33 || r > 126 {
			return '_'
		}
		return r
	}, v)
}

var paramEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `]`, `\]`)

// escapeParamValue escapes the three characters RFC 5424 section 6.3.3
// reserves inside PARAM-VALUE.
func escapeParamValue(v string) string {
	return paramEscaper.Replace(v)
}

// eventMessage converts ev into a Message. Details are emitted in key order
// so identical events serialize identically.
func eventMessage(ev Event, fac Facility, hostname, app string) Message {
	params := make([]SDParam, 0, len(ev.Details)+2)
	if ev.ActorID != "" {
		params = append(params, SDParam{Name: "actor_id", Value: ev.ActorID})
	}
	if ev.RequestID != "" {
		params = append(params, SDParam{Name: "request_id", Value: ev.RequestID})
	}
	keys := make([]string, 0, len(ev.Details))
	for k := range ev.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params = append(params, SDParam{Name: k, Value: ev.Details[k]})
	}

	msg := Message{
		Facility:  fac,
		Severity:  ev.Severity,
		Timestamp: ev.Timestamp,
		Hostname:  hostname,
		AppName:   app,
		MessageID: string(ev.Type),
	}
	if len(params) > 0 {
		msg.SD = []SDElement{{ID: sdID, Params: params}}
	}
	return msg
}
