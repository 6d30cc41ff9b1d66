package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
)

func ordersAndCustomers() (*Table, *Table) {
	orders := New([]string{"order_id", "customer_id"}, [][]any{
		{1, 1},
		{2, 2},
		{3, 9},
		{4, nil},
	})
	customers := New([]string{"id", "name", "system_id"}, [][]any{
		{1, "alice", 100},
		{2, "bob", 200},
		{2, "bob-dup", 201},
		{5, "eve", 500},
	})
	return orders, customers
}

func TestJoin_Left(t *testing.T) {
	orders, customers := ordersAndCustomers()

	res, err := Join(orders, customers, []string{"customer_id"}, []string{"id"}, models.JoinTypeLeft, []string{"system_id"})
	require.NoError(t, err)

	assert.Equal(t, []string{"order_id", "customer_id", "system_id"}, res.Table.Columns)
	assert.Equal(t, [][]any{
		{1, 1, 100},
		{2, 2, 200},
		{2, 2, 201},
		{3, 9, nil},
		{4, nil, nil},
	}, res.Table.Rows)

	assert.Equal(t, []int{1, 2, 0, 0}, res.LeftMatchCounts)
	assert.Equal(t, 2, res.MatchedLeftRows())
	assert.Equal(t, 2, res.UnmatchedLeftRows())
	assert.Equal(t, 1, res.LeftNullKeys)
	assert.Equal(t, 1, res.UnmatchedRightRows())
	assert.Equal(t, 5, res.LeftJoinRowCount())
}

func TestJoin_Inner(t *testing.T) {
	orders, customers := ordersAndCustomers()

	res, err := Join(orders, customers, []string{"customer_id"}, []string{"id"}, models.JoinTypeInner, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"order_id", "customer_id"}, res.Table.Columns)
	assert.Equal(t, 3, res.Table.Len())
}

func TestJoin_Right(t *testing.T) {
	orders, customers := ordersAndCustomers()

	res, err := Join(orders, customers, []string{"customer_id"}, []string{"id"}, models.JoinTypeRight, []string{"name"})
	require.NoError(t, err)

	require.Equal(t, 4, res.Table.Len())
	assert.Equal(t, []any{nil, nil, "eve"}, res.Table.Rows[3])
}

func TestJoin_ConflictingColumnGetsSuffix(t *testing.T) {
	left := New([]string{"id", "name"}, [][]any{{1, "x"}})
	right := New([]string{"id", "name"}, [][]any{{1, "y"}})

	res, err := Join(left, right, []string{"id"}, []string{"id"}, models.JoinTypeLeft, []string{"name"})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "name_right"}, res.Table.Columns)
	assert.Equal(t, []any{1, "x", "y"}, res.Table.Rows[0])
}

func TestJoin_CompositeKeyAcrossNumericTypes(t *testing.T) {
	left := New([]string{"a", "b"}, [][]any{{int64(1), "x"}, {2, "y"}})
	right := New([]string{"a", "b", "v"}, [][]any{{1.0, "x", "hit"}, {2, "z", "miss"}})

	res, err := Join(left, right, []string{"a", "b"}, []string{"a", "b"}, models.JoinTypeLeft, []string{"v"})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0}, res.LeftMatchCounts)
	assert.Equal(t, "hit", res.Table.Rows[0][2])
}

func TestJoin_NullRightKeysNeverMatch(t *testing.T) {
	left := New([]string{"k"}, [][]any{{nil}})
	right := New([]string{"k"}, [][]any{{nil}})

	res, err := Join(left, right, []string{"k"}, []string{"k"}, models.JoinTypeLeft, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.MatchedLeftRows())
	assert.Equal(t, 1, res.RightNullKeys)
}

func TestJoin_Errors(t *testing.T) {
	orders, customers := ordersAndCustomers()

	_, err := Join(orders, customers, []string{"customer_id"}, nil, models.JoinTypeLeft, nil)
	assert.Error(t, err)

	_, err = Join(orders, customers, []string{"nope"}, []string{"id"}, models.JoinTypeLeft, nil)
	assert.Error(t, err)

	_, err = Join(orders, customers, []string{"customer_id"}, []string{"id"}, "outer", nil)
	assert.Error(t, err)
}
