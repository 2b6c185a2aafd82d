package executor

import "strings"

// Kind is the failure class derived from an execution error.
type Kind string

const (
	KindOOM       Kind = "oom"
	KindHeartbeat Kind = "heartbeat"
	KindSpawn     Kind = "spawn"
	KindSocket    Kind = "socket"
	KindUnknown   Kind = "unknown"
)

// Classification pairs a failure kind with whether an immediate retry
// is worth attempting.
type Classification struct {
	Kind      Kind
	Transient bool
}

// patterns is the ordered substring table mapping error text to a
// kind. First match wins, so more specific entries come first.
var patterns = []struct {
	substr string
	kind   Kind
}{
	{"out of memory", KindOOM},
	{"oom", KindOOM},
	{"heartbeat", KindHeartbeat},
	{"fork/exec", KindSpawn},
	{"spawn", KindSpawn},
	{"connection reset", KindSocket},
	{"connection refused", KindSocket},
	{"broken pipe", KindSocket},
	{"socket", KindSocket},
}

// Classify maps an execution error to a failure class. Out-of-memory
// is assumed non-transient: the same payload will blow the same limit
// again. Everything else matched is worth one immediate retry.
// Unmatched errors classify as unknown and are not retried inline.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p.substr) {
			return Classification{
				Kind:      p.kind,
				Transient: p.kind != KindOOM,
			}
		}
	}

	return Classification{Kind: KindUnknown, Transient: false}
}
