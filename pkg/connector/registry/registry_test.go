package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectorhq/meridian/pkg/connector/core"
	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

func testDescriptor(tag string) *Descriptor {
	return &Descriptor{
		Tag:     tag,
		Name:    tag,
		Version: "0.0.1",
		Schema: []core.ParameterSpec{
			{Name: "host", Required: true},
			{Name: "port", Default: "1234"},
		},
		Factory: func(core.Parameters) (core.Connector, error) { return nil, nil },
	}
}

func TestRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(testDescriptor("alpha")))
	require.True(t, reg.Has("alpha"))

	desc, err := reg.Resolve("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", desc.Tag)
}

func TestRegisterDuplicateTag(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(testDescriptor("alpha")))

	err := reg.Register(testDescriptor("alpha"))
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConflict))

	// The first registration stays in place.
	desc, err := reg.Resolve("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", desc.Tag)
}

func TestRegisterInvalidDescriptor(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register(&Descriptor{Tag: ""})
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConfig))

	noFactory := testDescriptor("beta")
	noFactory.Factory = nil
	err = reg.Register(noFactory)
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConfig))
}

func TestResolveUnknownTag(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Resolve("never_registered")
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeUnknownConnector))
}

func TestListAndTagsSorted(t *testing.T) {
	reg := NewRegistry()

	for _, tag := range []string{"zeta", "alpha", "mike"} {
		require.NoError(t, reg.Register(testDescriptor(tag)))
	}

	assert.Equal(t, []string{"alpha", "mike", "zeta"}, reg.Tags())

	descs := reg.List()
	require.Len(t, descs, 3)
	assert.Equal(t, "alpha", descs[0].Tag)
}

func TestValidateParams(t *testing.T) {
	desc := testDescriptor("alpha")

	tests := []struct {
		name    string
		params  core.Parameters
		wantErr bool
	}{
		{
			name:   "valid with all fields",
			params: core.Parameters{"host": "h", "port": "9"},
		},
		{
			name:   "valid without optional field",
			params: core.Parameters{"host": "h"},
		},
		{
			name:    "missing required field",
			params:  core.Parameters{"port": "9"},
			wantErr: true,
		},
		{
			name:    "unknown field",
			params:  core.Parameters{"host": "h", "extra": "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := desc.ValidateParams(tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeSchemaMismatch))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	desc := testDescriptor("alpha")

	filled := desc.ApplyDefaults(core.Parameters{"host": "h"})
	assert.Equal(t, "1234", filled["port"])

	// An explicit value wins over the default, and the input is not mutated.
	explicit := core.Parameters{"host": "h", "port": "9"}
	filled = desc.ApplyDefaults(explicit)
	assert.Equal(t, "9", filled["port"])

	delete(filled, "port")
	assert.Equal(t, "9", explicit["port"])
}
