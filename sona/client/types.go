package client

import "encoding/json"

// Status is the body of the health, ready, load and unload endpoints.
type Status struct {
	Status  string `json:"status"`
	Model   string `json:"model,omitempty"`
	Message string `json:"message,omitempty"`

	// Raw holds every field of the decoded body.
	Raw map[string]any `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the whole body in Raw.
func (s *Status) UnmarshalJSON(data []byte) error {
	type plain Status
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Status(p)
	s.Raw = raw
	return nil
}

// Model is an entry of the model list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// IDs returns the ids of the listed models.
func (l *ModelList) IDs() []string {
	ids := make([]string, len(l.Data))
	for i, m := range l.Data {
		ids[i] = m.ID
	}
	return ids
}

type loadRequest struct {
	Path string `json:"path"`
}
