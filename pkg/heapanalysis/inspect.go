package heapanalysis

import "github.com/dumpscope/dumpscope/pkg/inspector"

// RawObject is a shallow decoded object as ClrMd would produce it, before
// array/string truncation caps are applied.
type RawObject struct {
	Address       uint64
	TypeName      string
	Fields        []inspector.InspectedField
	ArrayElements []string
	StringValue   *string
}

// BuildInspection applies the maxArrayElements/maxStringLength caps to a raw
// decoded object. maxDepth is enforced by the
// caller while decoding fields, not here.
func BuildInspection(raw RawObject, maxArrayElements, maxStringLength int) *inspector.Inspection {
	insp := &inspector.Inspection{
		Address:  raw.Address,
		TypeName: raw.TypeName,
		Fields:   raw.Fields,
	}

	if raw.ArrayElements != nil {
		elems := raw.ArrayElements
		if maxArrayElements > 0 && len(elems) > maxArrayElements {
			insp.ArrayElements = elems[:maxArrayElements]
			insp.ArrayTruncated = true
		} else {
			insp.ArrayElements = elems
		}
	}

	if raw.StringValue != nil {
		value, truncated := truncateValue(*raw.StringValue, maxStringLength)
		insp.StringValue = value
		insp.StringTruncated = truncated
	}

	return insp
}

// NotOpenInspection is the {error} result returned when the inspector is
// not attached to an open dump.
func NotOpenInspection() *inspector.Inspection {
	return &inspector.Inspection{Error: "inspector is not open"}
}
