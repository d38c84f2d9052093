package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sweeney/holdclick/internal/property"
)

// PropertyJSON is the JSON representation of a device property.
type PropertyJSON struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Format    int     `json:"format"`
	Items     []int64 `json:"items"`
	CheckOnly bool    `json:"check_only,omitempty"`
}

// PropertyWrite is the body of a property write request. Type defaults to
// INTEGER and must name a registered atom.
type PropertyWrite struct {
	Type   string  `json:"type"`
	Format int     `json:"format"`
	Items  []int64 `json:"items"`
}

// ErrorJSON is the body of every error response.
type ErrorJSON struct {
	Error string `json:"error"`
}

func propertyJSON(a property.Atom, v property.Value) (PropertyJSON, error) {
	items, err := v.Items()
	if err != nil {
		return PropertyJSON{}, err
	}
	return PropertyJSON{
		Name:   property.Name(a),
		Type:   property.Name(v.Type),
		Format: v.Format,
		Items:  items,
	}, nil
}

// value converts a write request to a property value.
func (pw PropertyWrite) value() (property.Value, error) {
	v, err := property.Ints(pw.Format, pw.Items...)
	if err != nil {
		return property.Value{}, err
	}
	if pw.Type != "" {
		t, ok := property.Lookup(pw.Type)
		if !ok {
			return property.Value{}, fmt.Errorf("%w: unknown type %q", property.ErrBadValue, pw.Type)
		}
		v.Type = t
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorJSON{Error: err.Error()})
}
