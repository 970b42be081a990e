package sheet

import (
	"sort"
	"time"
)

// ItemState is the derived change-tracking state of one item.
type ItemState string

const (
	StateUnmodified  ItemState = "unmodified"
	StateEditedOnly  ItemState = "edited_only"
	StateChangedOnly ItemState = "changed_only"
	StateConflict    ItemState = "conflict"
	StateAccepted    ItemState = "accepted"
	StateRejected    ItemState = "rejected"
)

// ResolutionStatus is the operator's decision on a conflict.
type ResolutionStatus string

const (
	ResolutionNone     ResolutionStatus = ""
	ResolutionAccepted ResolutionStatus = "accepted"
	ResolutionRejected ResolutionStatus = "rejected"
)

// Resolution covers one specific upstream value. It stops applying as soon as
// the upstream value moves away from PortalValueAtResolution.
type Resolution struct {
	Status                  ResolutionStatus `json:"status"`
	PortalValueAtResolution PortalValue      `json:"portalValueAtResolution"`
	DisplayValue            string           `json:"displayValue,omitempty"` // value shown when the decision was made
	Author                  string           `json:"author,omitempty"`
	ResolvedAt              time.Time        `json:"resolvedAt"`
}

// coversChange reports whether the resolution still applies to change.
func (r Resolution) coversChange(change *ChangeRecord) bool {
	return change != nil && r.PortalValueAtResolution.Equal(change.Current())
}

// ResolveState derives an item's state from its three inputs. A nil
// resolution means none is recorded or the recorded one no longer applies.
func ResolveState(edited, changed bool, resolution *Resolution) ItemState {
	if resolution != nil {
		switch resolution.Status {
		case ResolutionAccepted:
			return StateAccepted
		case ResolutionRejected:
			return StateRejected
		}
	}
	switch {
	case edited && changed:
		return StateConflict
	case edited:
		return StateEditedOnly
	case changed:
		return StateChangedOnly
	default:
		return StateUnmodified
	}
}

// ItemChangeInfo is what the editor surfaces for an item with upstream drift.
type ItemChangeInfo struct {
	Key        ItemKey
	Change     *ChangeRecord
	Edit       *EditRecord
	Resolution *Resolution
	State      ItemState
}

func sortChangeInfos(infos []ItemChangeInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
}
