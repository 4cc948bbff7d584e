package cache

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = CodecByName("MsgPack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", c.Name())

	_, err = CodecByName("gob")
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestCodecsDecodeGenericShapes(t *testing.T) {
	for _, codec := range []Codec{JSON, Msgpack} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Marshal(map[string]any{"name": "widget", "tags": []string{"a"}})
			require.NoError(t, err)
			val, err := codec.Unmarshal(data)
			require.NoError(t, err)
			m, ok := val.(map[string]any)
			require.True(t, ok, "expected map[string]any, got %T", val)
			assert.Equal(t, "widget", m["name"])
			assert.Equal(t, []any{"a"}, m["tags"])
		})
	}
}

func TestJSONCodecRejectsUnencodable(t *testing.T) {
	_, err := JSON.Marshal(make(chan int))
	assert.Error(t, err)

	_, err = JSON.Unmarshal([]byte("{not json"))
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	type Project struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	p, err := convert[Project](map[string]any{"name": "dash", "count": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, Project{Name: "dash", Count: 3}, p)

	s, err := convert[string]("direct")
	require.NoError(t, err)
	assert.Equal(t, "direct", s)

	_, err = convert[int]("not a number")
	assert.True(t, errors.Is(err, ErrSerialization))
}
