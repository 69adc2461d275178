package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowSetOverridesInPlace(t *testing.T) {
	t.Parallel()

	r := NewRow(Text("name", "Pils"), Null("item_url"), Text("grouping", "Draft"))
	r.Set(Text("name", "Helles"))

	require.Equal(t, 3, r.Len())
	v, ok := r.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Helles", *v)
	assert.Equal(t, "name", r.Cells()[0].Column)

	v, ok = r.Get("item_url")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = r.Get("price")
	assert.False(t, ok)
}

func TestTableColumnUnionAndNulls(t *testing.T) {
	t.Parallel()

	tbl := NewTable()
	tbl.Append(NewRow(Text("name", "A"), Text("price", "5")))
	tbl.Append(NewRow(Text("name", "B"), Null("item_url")))
	tbl.Append(NewRow(Text("name", "C"), Text("origin", "Local")))

	assert.Equal(t, []string{"name", "price", "item_url", "origin"}, tbl.Columns())
	require.Equal(t, 3, tbl.Len())

	vals := tbl.Values(1)
	require.Len(t, vals, 4)
	assert.Equal(t, "B", *vals[0])
	assert.Nil(t, vals[1])
	assert.Nil(t, vals[2])
	assert.Nil(t, vals[3])

	assert.Equal(t, "Local", *tbl.Value(2, "origin"))
	assert.Nil(t, tbl.Value(0, "origin"))
	assert.Nil(t, tbl.Value(9, "name"))
}

func TestOptCopiesValue(t *testing.T) {
	t.Parallel()

	s := "12oz"
	c := Opt("size", &s)
	s = "changed"
	require.NotNil(t, c.Value)
	assert.Equal(t, "12oz", *c.Value)
	assert.Nil(t, Opt("size", nil).Value)
}

func TestTableMarshalJSONCarriesEveryColumn(t *testing.T) {
	t.Parallel()

	tbl := NewTable()
	tbl.Append(NewRow(Text("name", "A")))
	tbl.Append(NewRow(Text("name", "B"), Text("price", "4")))

	data, err := json.Marshal(tbl)
	require.NoError(t, err)

	var decoded []map[string]*string
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Contains(t, decoded[0], "price")
	assert.Nil(t, decoded[0]["price"])
	assert.Equal(t, "4", *decoded[1]["price"])
}

func TestNilTableIsEmpty(t *testing.T) {
	t.Parallel()

	var tbl *Table
	assert.Equal(t, 0, tbl.Len())
	assert.Nil(t, tbl.Columns())
	assert.Nil(t, tbl.Rows())
}

func TestTableIsolatedFromCallerRows(t *testing.T) {
	t.Parallel()

	r := NewRow(Text("a", "1"))
	tbl := NewTable()
	tbl.Append(r)

	r.Set(Text("a", "2"))
	assert.Equal(t, "1", *tbl.Value(0, "a"), "appended row is a copy")

	rows := tbl.Rows()
	rows[0].Set(Text("a", "3"))
	assert.Equal(t, "1", *tbl.Value(0, "a"), "Rows returns copies")
}
