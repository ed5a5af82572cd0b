package session

import "fmt"

// attributionTemplate wraps a name into the remark stored on a closed record.
const attributionTemplate = "（分享者：%s）"

// AttributionAction is the decision for the remark-stage input.
type AttributionAction int

const (
	// AttrContinue reopens the content stage; the record stays open.
	AttrContinue AttributionAction = iota
	// AttrSelf attributes the record to the sender's display name.
	AttrSelf
	// AttrSkip closes the record with no remark.
	AttrSkip
	// AttrCustom attributes the record to the literal input text.
	AttrCustom
)

// Attribution is the resolved remark-stage decision.
type Attribution struct {
	Action AttributionAction
	Name   string
}

// ResolveAttribution maps the remark-stage reply to an action. It has no side
// effects; the state machine applies the result.
func ResolveAttribution(input string) Attribution {
	switch input {
	case "1":
		return Attribution{Action: AttrContinue}
	case "2":
		return Attribution{Action: AttrSelf}
	case "3":
		return Attribution{Action: AttrSkip}
	default:
		return Attribution{Action: AttrCustom, Name: input}
	}
}

// FormatAttribution renders the stored remark for a name.
func FormatAttribution(name string) string {
	return fmt.Sprintf(attributionTemplate, name)
}
