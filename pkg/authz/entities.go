package authz

import (
	"github.com/cedar-policy/cedar-go"

	"github.com/momoterminal/termguard/pkg/policy"
)

const (
	terminalType cedar.EntityType = "Terminal"
	actionType   cedar.EntityType = "Action"
	localID                       = "local"
)

func terminalUID(id string) cedar.EntityUID {
	if id == "" {
		id = localID
	}
	return cedar.NewEntityUID(terminalType, cedar.String(id))
}

// buildEntities returns the entity graph: a single Terminal that is both
// principal and resource.
func buildEntities(req AuthzRequest) cedar.EntityMap {
	uid := terminalUID(req.TerminalID)
	return cedar.EntityMap{
		uid: cedar.Entity{
			UID:        uid,
			Parents:    cedar.NewEntityUIDSet(),
			Attributes: cedar.NewRecord(cedar.RecordMap{}),
		},
	}
}

// verdictContext renders a verdict as the Cedar context record.
func verdictContext(v policy.InitializationResult, biometric bool) cedar.Record {
	kinds := make([]cedar.Value, 0, len(v.Failures))
	for _, f := range v.Failures {
		kinds = append(kinds, cedar.String(string(f.Kind)))
	}
	return cedar.NewRecord(cedar.RecordMap{
		"device_secure":      cedar.Boolean(v.OK()),
		"critical_failures":  cedar.Long(int64(len(v.Failures))),
		"warnings":           cedar.Long(int64(len(v.Warnings))),
		"failure_kinds":      cedar.NewSet(kinds...),
		"build_mode":         cedar.String(v.BuildMode.String()),
		"biometric_verified": cedar.Boolean(biometric),
	})
}

// buildCedarRequest maps a gating request onto Cedar. Verdict must be
// non-nil.
func buildCedarRequest(req AuthzRequest) cedar.Request {
	uid := terminalUID(req.TerminalID)
	return cedar.Request{
		Principal: uid,
		Action:    cedar.NewEntityUID(actionType, cedar.String(req.Action)),
		Resource:  uid,
		Context:   verdictContext(*req.Verdict, req.BiometricVerified),
	}
}
