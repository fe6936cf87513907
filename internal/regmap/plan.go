package regmap

import "sort"

// Modbus FC3 allows at most 125 registers per request; stay a little under
// it, some embedded stacks choke near the limit.
const DefaultMaxRegisters = 120

// DefaultMaxGap is how many unreferenced filler registers a request may span
// so that near-contiguous descriptors still share one round trip. The Ovum
// controller pads its realtime blocks with unused registers, reading through
// them is cheaper than splitting the request.
const DefaultMaxGap = 18

// PlanOptions tune request grouping.
type PlanOptions struct {
	MaxRegisters uint16 // combined span limit per request
	MaxGap       uint16 // largest address gap bridged within one request
}

// RequestGroup is one planned read request covering a contiguous register
// span and the descriptors decoded from it.
type RequestGroup struct {
	Start       uint16
	Count       uint16
	Descriptors []Descriptor
}

// Keys returns the keys of all descriptors in the group.
func (g RequestGroup) Keys() []string {
	keys := make([]string, len(g.Descriptors))
	for i, d := range g.Descriptors {
		keys[i] = d.Key
	}
	return keys
}

// PlanRequests partitions descriptors into a minimal set of read requests.
// Descriptors with adjacent or overlapping spans are merged, and small gaps
// are bridged, as long as the combined span stays within opts.MaxRegisters.
// Pure planning, no I/O.
func PlanRequests(descs []Descriptor, opts PlanOptions) []RequestGroup {
	if opts.MaxRegisters == 0 {
		opts.MaxRegisters = DefaultMaxRegisters
	}

	if len(descs) == 0 {
		return nil
	}

	sorted := make([]Descriptor, len(descs))
	copy(sorted, descs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Address != sorted[j].Address {
			return sorted[i].Address < sorted[j].Address
		}
		return sorted[i].Words > sorted[j].Words
	})

	var groups []RequestGroup
	cur := RequestGroup{
		Start:       sorted[0].Address,
		Count:       sorted[0].Words,
		Descriptors: []Descriptor{sorted[0]},
	}

	for _, d := range sorted[1:] {
		end := uint32(cur.Start) + uint32(cur.Count) // first address past the span
		dEnd := uint32(d.Address) + uint32(d.Words)

		mergeable := uint32(d.Address) <= end+uint32(opts.MaxGap)
		newCount := uint32(cur.Count)
		if dEnd > end {
			newCount = dEnd - uint32(cur.Start)
		}
		if mergeable && newCount <= uint32(opts.MaxRegisters) {
			cur.Count = uint16(newCount)
			cur.Descriptors = append(cur.Descriptors, d)
			continue
		}

		groups = append(groups, cur)
		cur = RequestGroup{
			Start:       d.Address,
			Count:       d.Words,
			Descriptors: []Descriptor{d},
		}
	}

	return append(groups, cur)
}
