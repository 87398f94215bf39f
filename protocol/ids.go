package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// IDList is a list of object ids that also accepts a single id on the wire.
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*l = IDList{id}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	if ids == nil {
		return errors.New("ids must not be null")
	}
	*l = ids
	return nil
}

// decodeIDs accepts a bare id, a bare array of ids, or {"ids": ...} and
// returns the ids de-duplicated in their original order.
func decodeIDs(data json.RawMessage) ([]string, error) {
	if isNull(data) {
		return nil, errors.New("missing ids")
	}
	var list IDList
	if d := bytes.TrimSpace(data); d[0] == '{' {
		var p struct {
			IDs *IDList `json:"ids"`
		}
		if err := json.Unmarshal(d, &p); err != nil {
			return nil, err
		}
		if p.IDs == nil {
			return nil, errors.New("missing ids")
		}
		list = *p.IDs
	} else if err := json.Unmarshal(d, &list); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, id := range list {
		if id == "" {
			return nil, errors.New("empty id")
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
