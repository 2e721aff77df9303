package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestProcurement_Executor_ToPrimitive(t *testing.T) {
	t.Parallel()

	id := primitive.NewObjectID()
	dec, err := primitive.ParseDecimal128("1234.50")
	require.NoError(t, err)
	day := time.Date(2014, 7, 1, 12, 0, 0, 0, time.UTC)

	got := ToPrimitive(bson.M{
		"_id":     bson.M{"department": "Health", "order": id},
		"when":    primitive.NewDateTimeFromTime(day),
		"amount":  dec,
		"items":   bson.A{int32(1), primitive.Null{}, day},
		"ordered": bson.D{{Key: "b", Value: 2.5}, {Key: "a", Value: "x"}},
	})

	require.Equal(t, map[string]any{
		"_id":     map[string]any{"department": "Health", "order": id.Hex()},
		"when":    "2014-07-01T12:00:00Z",
		"amount":  1234.5,
		"items":   []any{int64(1), nil, "2014-07-01T12:00:00Z"},
		"ordered": map[string]any{"b": 2.5, "a": "x"},
	}, got)
}
