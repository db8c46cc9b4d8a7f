package pipeline

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decision is the resume value of the approval stage.
type Decision struct {
	Decision string `json:"decision" mapstructure:"decision"`
	Feedback string `json:"feedback,omitempty" mapstructure:"feedback"`
	Reason   string `json:"reason,omitempty" mapstructure:"reason"`
}

// DecodeDecision interprets an opaque resume value. It accepts a Decision,
// a bare decision string, or a map such as a decoded JSON object. A missing
// decision means rejected.
func DecodeDecision(v any) (Decision, error) {
	var d Decision
	switch t := v.(type) {
	case nil:
	case Decision:
		d = t
	case *Decision:
		if t != nil {
			d = *t
		}
	case string:
		d.Decision = t
	default:
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &d,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return Decision{}, err
		}
		if err := dec.Decode(v); err != nil {
			return Decision{}, fmt.Errorf("invalid approval decision: %w", err)
		}
	}
	if d.Decision == "" {
		d.Decision = DecisionRejected
	}
	return d, nil
}
