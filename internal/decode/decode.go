// Package decode turns raw register words into typed values per register
// descriptor. Pure functions, no I/O, no state.
package decode

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ovum-tools/acp-poller/internal/regmap"
)

// ErrMalformedPayload is returned when the raw word count does not match the
// descriptor's expectation.
var ErrMalformedPayload = errors.New("decode: malformed payload")

// Kind discriminates the two shapes a decoded value can take.
type Kind int

const (
	KindNumber Kind = iota
	KindLabel
)

// Value is one decoded register value: either a scaled decimal number or a
// status label.
type Value struct {
	Kind   Kind
	Number decimal.Decimal
	Label  string
}

// String renders the value the way a display would.
func (v Value) String() string {
	if v.Kind == KindLabel {
		return v.Label
	}
	return v.Number.String()
}

// Decode converts raw words into a Value per the descriptor's rule. The
// descriptor's scale factor is applied after sign interpretation, in decimal
// arithmetic so displayed values carry no binary rounding artifacts.
func Decode(d regmap.Descriptor, words []uint16) (Value, error) {
	if len(words) != int(d.Words) {
		return Value{}, fmt.Errorf("%w: %q wants %d words, got %d", ErrMalformedPayload, d.Key, d.Words, len(words))
	}

	switch d.Rule {
	case regmap.RuleUnsigned16:
		return scaled(int64(words[0]), d), nil

	case regmap.RuleSigned16:
		return scaled(int64(int16(words[0])), d), nil

	case regmap.RuleSigned32:
		// High word first; sign applies to the composed value, not per word.
		composed := int32(uint32(words[0])<<16 | uint32(words[1]))
		return scaled(int64(composed), d), nil

	case regmap.RuleStatus:
		return Value{Kind: KindLabel, Label: StatusLabel(d.Labels, words[0])}, nil

	default:
		// Unreachable for a validated map.
		return Value{}, fmt.Errorf("%w: %q has unknown rule %q", ErrMalformedPayload, d.Key, d.Rule)
	}
}

// StatusLabel translates a status code through an enum table. Codes the table
// does not know decode to a placeholder rather than failing: newer firmware
// introduces codes the vendor never documented.
func StatusLabel(labels map[uint16]string, code uint16) string {
	if label, ok := labels[code]; ok {
		return label
	}
	return fmt.Sprintf("unknown (code %d)", code)
}

func scaled(raw int64, d regmap.Descriptor) Value {
	return Value{
		Kind:   KindNumber,
		Number: decimal.NewFromInt(raw).Mul(d.Scale.Decimal),
	}
}
