package xmongo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/xmgo/pkg/resilience/xretry"
)

const (
	mapFn    = "function() { emit(this.name, this.count); }"
	reduceFn = "function(k, vs) { return Array.sum(vs); }"
)

func TestMapReduce_Validation(t *testing.T) {
	c, fake := newTestCollection[item](t)

	_, err := c.MapReduce(context.Background(), MapReduceSpec{Reduce: reduceFn})
	assert.ErrorIs(t, err, ErrInvalidMapReduce)
	_, err = c.MapReduce(context.Background(), MapReduceSpec{Map: mapFn})
	assert.ErrorIs(t, err, ErrInvalidMapReduce)
	assert.Empty(t, fake.Calls())
}

func TestMapReduce_Inline(t *testing.T) {
	c, fake := newTestCollection[item](t)
	fake.commandDoc = bson.D{
		{Key: "results", Value: bson.A{
			bson.D{{Key: "_id", Value: "a"}, {Key: "value", Value: 3.0}},
			bson.D{{Key: "_id", Value: "b"}, {Key: "value", Value: 1.0}},
		}},
		{Key: "ok", Value: 1.0},
	}

	res, err := c.MapReduce(context.Background(), MapReduceSpec{
		Map:      mapFn,
		Reduce:   reduceFn,
		Finalize: "function(k, v) { return v; }",
		Query:    bson.D{{Key: "count", Value: bson.D{{Key: "$gt", Value: 0}}}},
		Sort:     bson.D{{Key: "name", Value: 1}},
		Limit:    100,
		Scope:    map[string]any{"factor": 2},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Collection)
	assert.Equal(t, []MapReduceItem{{ID: "a", Value: 3.0}, {ID: "b", Value: 1.0}}, res.Results)
	assert.NotEmpty(t, res.Raw)

	cmd, ok := fake.lastCall(t).doc.(bson.D)
	require.True(t, ok)
	keys := make([]string, len(cmd))
	for i, e := range cmd {
		keys[i] = e.Key
	}
	// mapReduce 必须是命令的第一个键
	assert.Equal(t, []string{"mapReduce", "map", "reduce", "out", "finalize", "query", "sort", "limit", "scope"}, keys)
	assert.Equal(t, "items", cmd[0].Value)
	assert.Equal(t, bson.JavaScript(mapFn), cmd[1].Value)
	assert.Equal(t, bson.D{{Key: "inline", Value: 1}}, cmd[3].Value)
	assert.Equal(t, int64(100), cmd[7].Value)
}

func TestMapReduce_OutCollection(t *testing.T) {
	c, fake := newTestCollection[item](t)
	fake.commandDoc = bson.D{{Key: "result", Value: "totals"}, {Key: "ok", Value: 1.0}}

	res, err := c.MapReduce(context.Background(), MapReduceSpec{Map: mapFn, Reduce: reduceFn, Out: "totals"})
	require.NoError(t, err)
	assert.Equal(t, "totals", res.Collection)
	assert.Empty(t, res.Results)

	cmd := fake.lastCall(t).doc.(bson.D)
	assert.Len(t, cmd, 4)
	assert.Equal(t, "totals", cmd[3].Value)
}

func TestMapReduce_OutDocument(t *testing.T) {
	c, fake := newTestCollection[item](t)
	fake.commandDoc = bson.D{
		{Key: "result", Value: bson.D{{Key: "db", Value: "other"}, {Key: "collection", Value: "totals"}}},
		{Key: "ok", Value: 1.0},
	}

	res, err := c.MapReduce(context.Background(), MapReduceSpec{Map: mapFn, Reduce: reduceFn, Out: "totals"})
	require.NoError(t, err)
	assert.Equal(t, "totals", res.Collection)
}

func TestMapReduce_CommandError(t *testing.T) {
	c, fake := newTestCollection[item](t)
	fake.commandErr = mongo.CommandError{Code: 139, Name: "JSInterpreterFailure", Message: "ReferenceError: x is not defined"}

	res, err := c.MapReduce(context.Background(), MapReduceSpec{Map: mapFn, Reduce: reduceFn})
	assert.Nil(t, res)

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "map_reduce", ce.Op)
	assert.Equal(t, "mapReduce", ce.Command)
	assert.Equal(t, 139, ce.Code)
	assert.Equal(t, "JSInterpreterFailure", ce.Name)
}

func TestMapReduce_OtherError(t *testing.T) {
	c, fake := newTestCollection[item](t)
	fake.commandErr = errors.New("connection refused")

	_, err := c.MapReduce(context.Background(), MapReduceSpec{Map: mapFn, Reduce: reduceFn})
	require.Error(t, err)
	var ce *CommandError
	assert.False(t, errors.As(err, &ce))
	assert.Equal(t, "xmongo map_reduce testdb.items: connection refused", err.Error())
}

func TestNewCommandError_WriteException(t *testing.T) {
	err := mongo.WriteException{
		WriteErrors: []mongo.WriteError{{Index: 0, Code: 11000, Message: "E11000 duplicate key"}},
	}
	ce := newCommandError("find_and_modify", "db", "coll", "findAndModify", err)
	require.NotNil(t, ce)
	assert.Equal(t, 11000, ce.Code)
	assert.Equal(t, "E11000 duplicate key", ce.Message)

	wcErr := mongo.WriteException{
		WriteConcernError: &mongo.WriteConcernError{Name: "WriteConcernFailed", Code: 64, Message: "waiting for replication timed out"},
	}
	ce = newCommandError("find_and_modify", "db", "coll", "findAndModify", wcErr)
	require.NotNil(t, ce)
	assert.Equal(t, 64, ce.Code)
	assert.Equal(t, "WriteConcernFailed", ce.Name)

	assert.Nil(t, newCommandError("x", "db", "coll", "x", errors.New("plain")))
}

func TestCommandError_MessageFallback(t *testing.T) {
	ce := &CommandError{Op: "map_reduce", Database: "db", Collection: "c", Command: "mapReduce", Err: errors.New("boom")}
	assert.Equal(t, "xmongo map_reduce db.c: command mapReduce failed: boom", ce.Error())
}

func TestMapReduce_ReadRetryOnlyInline(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		wantCalls int
	}{
		{"InlineRetried", "", 3},
		{"OutCollectionNotRetried", "totals", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestCollection[item](t, WithReadRetry(3, xretry.NoBackoff{}))
			fake.commandErr = steppedDown()

			_, err := c.MapReduce(context.Background(), MapReduceSpec{Map: mapFn, Reduce: reduceFn, Out: tt.out})
			var ce *CommandError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, 189, ce.Code)
			assert.Len(t, fake.Calls(), tt.wantCalls)
		})
	}
}
