package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID     string
	Region *region
}

type region struct {
	Code string
}

func TestEvaluateStructFieldPath(t *testing.T) {
	e := NewEvaluator(nil)
	v, err := e.Evaluate("payload.ID", order{ID: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", v)
}

func TestEvaluateNestedPointerFieldPath(t *testing.T) {
	e := NewEvaluator(nil)
	v, err := e.Evaluate("payload.Region.Code", order{ID: "ord-1", Region: &region{Code: "eu-west"}})
	require.NoError(t, err)
	assert.Equal(t, "eu-west", v)
}

func TestEvaluateMapKey(t *testing.T) {
	e := NewEvaluator(nil)
	v, err := e.Evaluate("payload.region", map[string]any{"region": "us-east"})
	require.NoError(t, err)
	assert.Equal(t, "us-east", v)
}

func TestEvaluateMissingFieldErrors(t *testing.T) {
	e := NewEvaluator(nil)
	_, err := e.Evaluate("payload.Missing", order{ID: "ord-1"})
	assert.Error(t, err)
}

func TestEvaluateNilPointerErrors(t *testing.T) {
	e := NewEvaluator(nil)
	_, err := e.Evaluate("payload.Region.Code", order{ID: "ord-1"})
	assert.Error(t, err)
}
