package record

import "fmt"

// Stage is the session's position in the title -> content -> remark flow.
type Stage int

const (
	StageWaitingCommand Stage = iota
	StageRecordTitle
	StageRecordContent
	StageRecordRemark
	// StageHandleOtherCommand exists only so stored sessions from older
	// deployments still parse; no handler transitions into it.
	StageHandleOtherCommand
)

var stageNames = map[Stage]string{
	StageWaitingCommand:     "WaitingCommand",
	StageRecordTitle:        "RecordTitle",
	StageRecordContent:      "RecordContent",
	StageRecordRemark:       "RecordRemark",
	StageHandleOtherCommand: "HandleOtherCommand",
}

var stagesByName = map[string]Stage{
	"WaitingCommand":     StageWaitingCommand,
	"RecordTitle":        StageRecordTitle,
	"RecordContent":      StageRecordContent,
	"RecordRemark":       StageRecordRemark,
	"HandleOtherCommand": StageHandleOtherCommand,
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ParseStage maps a stored stage name back to a Stage. An unrecognized name is
// a hard error: corrupt persisted state must surface, not default away.
func ParseStage(name string) (Stage, error) {
	stage, ok := stagesByName[name]
	if !ok {
		return StageWaitingCommand, fmt.Errorf("unknown stage %q", name)
	}
	return stage, nil
}

// Session is the single recording session: who may drive it, which record is
// open, and the current stage. It is loaded once per inbound event and saved
// back explicitly.
type Session struct {
	Stage    Stage
	OwnerID  int64
	RecordID string
}
