package features

import (
	"slices"
	"time"

	telemetry "turnstile-analytics/internal/telemetry/domain"
)

// NoPredecessor marks the first row of a device group.
const NoPredecessor = -1

// Group is the ordered history of one device. Rows are indices into the
// audit table, ascending by timestamp with ties kept in table order.
type Group struct {
	Device telemetry.DeviceKey
	Rows   []int
}

// FirstRow returns the smallest original row index in the group.
func (g Group) FirstRow() int {
	first := -1
	for _, row := range g.Rows {
		if first < 0 || row < first {
			first = row
		}
	}
	return first
}

// Partition maps each device to its ordered rows and each row to the row
// that precedes it in its group.
type Partition struct {
	Groups      []Group
	Predecessor []int
}

// PartitionRecords groups records by device key and orders each group by
// timestamp. Rows with include[i] false stay out of every group and have no
// predecessor. Groups are listed in order of first appearance.
func PartitionRecords(records []telemetry.AuditRecord, timestamps []time.Time, include []bool) *Partition {
	p := &Partition{Predecessor: make([]int, len(records))}
	index := make(map[telemetry.DeviceKey]int)
	for i := range records {
		p.Predecessor[i] = NoPredecessor
		if include != nil && !include[i] {
			continue
		}
		key := records[i].Device
		pos, ok := index[key]
		if !ok {
			pos = len(p.Groups)
			index[key] = pos
			p.Groups = append(p.Groups, Group{Device: key})
		}
		p.Groups[pos].Rows = append(p.Groups[pos].Rows, i)
	}

	for g := range p.Groups {
		rows := p.Groups[g].Rows
		slices.SortStableFunc(rows, func(a, b int) int {
			return timestamps[a].Compare(timestamps[b])
		})
		for k := 1; k < len(rows); k++ {
			p.Predecessor[rows[k]] = rows[k-1]
		}
	}
	return p
}

// Len returns the number of device groups.
func (p *Partition) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Groups)
}
