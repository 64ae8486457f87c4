package trace

import "strings"

// EventCode is the second field of a trace line.
type EventCode string

const (
	CodeInit            EventCode = "INIT"
	CodeActCreate       EventCode = "ACT_CREATE"
	CodeActResume       EventCode = "ACT_RESUME"
	CodeActPause        EventCode = "ACT_PAUSE"
	CodeActDestroy      EventCode = "ACT_DESTROY"
	CodeFragResume      EventCode = "FRAG_RESUME"
	CodeFragPause       EventCode = "FRAG_PAUSE"
	CodeFragDestroyView EventCode = "FRAG_DESTROY_VIEW"
	CodeDBRead          EventCode = "DB_READ"
	CodeDBWrite         EventCode = "DB_WRITE"
	CodeHTTP            EventCode = "HTTP"
	CodeWorker          EventCode = "WORKER"
	CodeSecGate         EventCode = "SEC_GATE"
	CodeSetting         EventCode = "SETTING"
	CodeBranch          EventCode = "BRANCH"

	// CodeRaw stands in for any code outside the known vocabulary.
	// The original token is kept in Record.RawCode.
	CodeRaw EventCode = "RAW"
)

var knownCodes = map[string]EventCode{
	string(CodeInit):            CodeInit,
	string(CodeActCreate):       CodeActCreate,
	string(CodeActResume):       CodeActResume,
	string(CodeActPause):        CodeActPause,
	string(CodeActDestroy):      CodeActDestroy,
	string(CodeFragResume):      CodeFragResume,
	string(CodeFragPause):       CodeFragPause,
	string(CodeFragDestroyView): CodeFragDestroyView,
	string(CodeDBRead):          CodeDBRead,
	string(CodeDBWrite):         CodeDBWrite,
	string(CodeHTTP):            CodeHTTP,
	string(CodeWorker):          CodeWorker,
	string(CodeSecGate):         CodeSecGate,
	string(CodeSetting):         CodeSetting,
	string(CodeBranch):          CodeBranch,
}

// LookupCode maps a raw token to a known EventCode.
// Unknown tokens return (CodeRaw, false).
func LookupCode(token string) (EventCode, bool) {
	if c, ok := knownCodes[token]; ok {
		return c, true
	}
	return CodeRaw, false
}

// IsTopLevel reports whether c changes a TOP_LEVEL (screen) scope.
func (c EventCode) IsTopLevel() bool {
	return strings.HasPrefix(string(c), "ACT_")
}

// IsComponent reports whether c changes a COMPONENT scope.
func (c EventCode) IsComponent() bool {
	return strings.HasPrefix(string(c), "FRAG_")
}

// IsLifecycle reports whether c only moves scope frames and is never
// attributed to a scope itself.
func (c EventCode) IsLifecycle() bool {
	return c.IsTopLevel() || c.IsComponent()
}

// IsOpen reports whether c opens (or re-enters) a scope.
func (c EventCode) IsOpen() bool {
	switch c {
	case CodeActCreate, CodeActResume, CodeFragResume:
		return true
	}
	return false
}

// IsQuery reports whether c is a data access: DB_READ, DB_WRITE or HTTP.
func (c EventCode) IsQuery() bool {
	switch c {
	case CodeDBRead, CodeDBWrite, CodeHTTP:
		return true
	}
	return false
}

// IsLoad reports whether c counts as loading data for a screen.
func (c EventCode) IsLoad() bool {
	return c.IsQuery() || c == CodeWorker
}

// AttributesToBackground reports whether c falls back to the synthetic
// BACKGROUND scope when no TOP_LEVEL frame is open.
func (c EventCode) AttributesToBackground() bool {
	switch c {
	case CodeWorker, CodeSecGate, CodeSetting:
		return true
	}
	return false
}
