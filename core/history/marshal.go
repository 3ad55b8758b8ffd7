package history

import (
	"encoding/json"
	"fmt"
)

// Encode serializes an action payload to JSON for persistence. The kind
// is stored alongside the payload by the caller.
func Encode(a Action) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s action: %w", a.Kind(), err)
	}
	return data, nil
}

// Decode rebuilds an action from its persisted kind and payload.
func Decode(kind Kind, payload []byte) (Action, error) {
	var (
		a   Action
		err error
	)
	switch kind {
	case KindRegionDelete:
		var v RegionDelete
		err = json.Unmarshal(payload, &v)
		a = v
	case KindRegionPaste:
		var v RegionPaste
		err = json.Unmarshal(payload, &v)
		a = v
	case KindRegionCropStart:
		var v RegionCropStart
		err = json.Unmarshal(payload, &v)
		a = v
	case KindRegionCropEnd:
		var v RegionCropEnd
		err = json.Unmarshal(payload, &v)
		a = v
	case KindRegionShift:
		var v RegionShift
		err = json.Unmarshal(payload, &v)
		a = v
	case KindRegionSplit:
		var v RegionSplit
		err = json.Unmarshal(payload, &v)
		a = v
	case KindTrackDelete:
		var v TrackDelete
		err = json.Unmarshal(payload, &v)
		a = v
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s action: %w", kind, err)
	}
	return a, nil
}
