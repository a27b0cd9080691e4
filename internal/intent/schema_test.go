package intent

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aisquery/internal/domain"
)

var testDefaults = Defaults{Limit: 50, Format: domain.FormatTable, DataSource: domain.SourceRawAIS}

func TestDecodeIntentScenarioOne(t *testing.T) {
	raw := `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"single",
		"vessels":[{"mmsi":123456789,"imo":null,"name":null}],
		"time_constraint":{"mode":"relative","relative":"last_6h","start":null,"end":null},
		"spatial_constraint":{"type":"none"}}`
	in, err := DecodeIntent([]byte(raw), testDefaults)
	require.NoError(t, err)
	assert.Equal(t, domain.DomainTrajectory, in.Domain)
	assert.Equal(t, domain.ScopeSingle, in.Scope)
	assert.Equal(t, []domain.VesselRef{{Kind: domain.RefMMSI, Value: "123456789"}}, in.Vessels)
	require.NotNil(t, in.Time)
	assert.Equal(t, "last_6h", in.Time.Relative)
	assert.Nil(t, in.Spatial)
	assert.Equal(t, 50, in.Output.Limit)
	assert.Equal(t, domain.SourceRawAIS, in.Execution.DataSource)
}

func TestDecodeIntentAbsoluteAndPolygon(t *testing.T) {
	raw := `{"domain_intent":"loitering","task_intent":"detect","vessel_scope":"all","vessels":[],
		"time_constraint":{"start":"2020-01-05T00:00:00","end":"2020-01-12T23:59:59Z"},
		"spatial_constraint":{"type":"polygon","polygon":[{"lat":1,"lon":1},{"lat":1,"lon":2},{"lat":2,"lon":2}]},
		"output":{"format":"map","limit":10}}`
	in, err := DecodeIntent([]byte(raw), testDefaults)
	require.NoError(t, err)
	require.NotNil(t, in.Time)
	assert.Equal(t, time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), *in.Time.Start)
	require.NotNil(t, in.Spatial)
	assert.Len(t, in.Spatial.Polygon, 3)
	assert.Equal(t, domain.FormatMap, in.Output.Format)
	assert.Equal(t, 10, in.Output.Limit)
}

func TestDecodeIntentNormalizesIdentifiers(t *testing.T) {
	raw := `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"multiple",
		"vessels":[{"imo":"IMO 9321483"},{"call_sign":"vrab3"}]}`
	in, err := DecodeIntent([]byte(raw), testDefaults)
	require.NoError(t, err)
	assert.Equal(t, "9321483", in.Vessels[0].Value)
	assert.Equal(t, "VRAB3", in.Vessels[1].Value)
}

func TestDecodeIntentRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `nope`},
		{"unknown field", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"all","colour":"red"}`},
		{"missing domain", `{"task_intent":"show","vessel_scope":"all"}`},
		{"unknown domain", `{"domain_intent":"weather","task_intent":"show","vessel_scope":"all"}`},
		{"unknown task", `{"domain_intent":"trajectory","task_intent":"explain","vessel_scope":"all"}`},
		{"two identifiers", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"single","vessels":[{"mmsi":"123456789","name":"X"}]}`},
		{"short mmsi", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"single","vessels":[{"mmsi":"12345"}]}`},
		{"bad imo", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"single","vessels":[{"imo":"93A1483"}]}`},
		{"bad relative", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"all","time_constraint":{"relative":"last_fortnight"}}`},
		{"mixed time", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"all","time_constraint":{"relative":"last_6h","start":"2020-01-01T00:00:00Z","end":"2020-01-02T00:00:00Z"}}`},
		{"bad timestamp", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"all","time_constraint":{"mode":"absolute","start":"Jan 5","end":"Jan 6"}}`},
		{"bbox missing", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"all","spatial_constraint":{"type":"bbox"}}`},
		{"unknown region", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"all","spatial_constraint":{"type":"coastal_distance"}}`},
		{"bad format", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"all","output":{"format":"pdf"}}`},
		{"trailing", `{"domain_intent":"trajectory","task_intent":"show","vessel_scope":"all"} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIntent([]byte(tt.raw), testDefaults)
			require.Error(t, err)
			var se *SchemaError
			assert.True(t, errors.As(err, &se), "want SchemaError, got %T", err)
		})
	}
}
