package widgetschema_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphummel/dcims/internal/widgetschema"
)

func TestValidate_Accepts(t *testing.T) {
	docs := []string{
		`{"type":"chart"}`,
		`{"type":"chart","title":"By status","position":{"x":0,"y":2},"size":{"width":6,"height":2},
		  "config":{"type":"pie","showLegend":false},
		  "data_source":{"table":"servers","aggregation":"count","groupBy":"status","filters":[]}}`,
		`{"type":"table","data_source":{"table":"servers","groupBy":["dc_site","status"],
		  "filters":[{"field":"status","operator":"equals","value":"Active"}]}}`,
		`{"type":"metric","config":null,"data_source":null,"filters":null}`,
		// Unknown operators are left to the query layer.
		`{"type":"chart","data_source":{"table":"servers","filters":[{"field":"status","operator":"startsWith","value":"A"}]}}`,
	}
	for _, doc := range docs {
		assert.NoError(t, widgetschema.Validate(json.RawMessage(doc)), doc)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"missing type", `{"title":"x"}`, ""},
		{"unknown type", `{"type":"sparkline"}`, "/type"},
		{"width too large", `{"type":"chart","size":{"width":13}}`, "/size/width"},
		{"width zero", `{"type":"chart","size":{"width":0}}`, "/size/width"},
		{"negative position", `{"type":"chart","position":{"x":-1}}`, "/position/x"},
		{"fractional height", `{"type":"chart","size":{"height":1.5}}`, "/size/height"},
		{"bad chart kind", `{"type":"chart","config":{"type":"radar"}}`, "/config/type"},
		{"bad aggregation", `{"type":"chart","data_source":{"table":"servers","aggregation":"median"}}`, "/data_source/aggregation"},
		{"missing table", `{"type":"chart","data_source":{"aggregation":"count"}}`, "/data_source"},
		{"groupBy number", `{"type":"chart","data_source":{"table":"servers","groupBy":3}}`, "/data_source/groupBy"},
		{"filter without operator", `{"type":"chart","data_source":{"table":"servers","filters":[{"field":"status"}]}}`, "/data_source/filters/0"},
		{"not an object", `"chart"`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := widgetschema.Validate(json.RawMessage(tt.doc))
			require.Error(t, err)
			var se *widgetschema.Error
			require.True(t, errors.As(err, &se), "expected *widgetschema.Error, got %T", err)
			assert.Equal(t, tt.path, se.Path)
			assert.NotEmpty(t, se.Message)
		})
	}
}

func TestValidate_MalformedJSON(t *testing.T) {
	err := widgetschema.Validate(json.RawMessage(`{"type":`))
	require.Error(t, err)
	var se *widgetschema.Error
	assert.False(t, errors.As(err, &se))
}

func TestValidateAll_PrefixesIndex(t *testing.T) {
	err := widgetschema.ValidateAll([]json.RawMessage{
		json.RawMessage(`{"type":"chart"}`),
		json.RawMessage(`{"type":"chart","size":{"width":99}}`),
	})
	var se *widgetschema.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "/1/size/width", se.Path)
	assert.Contains(t, se.Error(), "widget.1.size.width")
}
