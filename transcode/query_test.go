// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode_test

import (
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/awscore/schema"
	"github.com/juju/awscore/transcode"
)

type querySuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&querySuite{})

func encodeToQuery(c *gc.C, v *schema.Struct) string {
	tree, err := transcode.Encode(v)
	c.Assert(err, jc.ErrorIsNil)
	return transcode.EncodeQuery(transcode.QueryItems(tree))
}

func (s *querySuite) TestScalarMembers(c *gc.C) {
	st := schema.NewStructType("Input",
		schema.Member{Name: "a", WireName: "A", Type: schema.StringType},
		schema.Member{Name: "b", WireName: "B", Type: schema.Int32Type},
	)
	v := schema.NewStruct(st).Set("a", "Testing").Set("b", int64(42))
	c.Check(encodeToQuery(c, v), gc.Equals, "A=Testing&B=42")
}

func (s *querySuite) TestNestedShape(c *gc.C) {
	inner := schema.NewStructType("Inner",
		schema.Member{Name: "a", WireName: "A", Type: schema.Int32Type},
		schema.Member{Name: "b", WireName: "B", Type: schema.StringType},
	)
	st := schema.NewStructType("Input",
		schema.Member{Name: "t", WireName: "T", Type: inner},
	)
	v := schema.NewStruct(st).Set("t",
		schema.NewStruct(inner).Set("a", int64(42)).Set("b", "Life"))
	c.Check(encodeToQuery(c, v), gc.Equals, "T.A=42&T.B=Life")
}

func (s *querySuite) TestDefaultList(c *gc.C) {
	st := schema.NewStructType("Input",
		schema.Member{Name: "a", WireName: "A", Type: schema.ListType{Elem: schema.Int32Type}},
	)
	v := schema.NewStruct(st).Set("a", []any{int64(9), int64(8), int64(7), int64(6)})
	c.Check(encodeToQuery(c, v), gc.Equals, "A.1=9&A.2=8&A.3=7&A.4=6")
}

func (s *querySuite) TestFlatListMatchesDefault(c *gc.C) {
	st := schema.NewStructType("Input",
		schema.Member{Name: "a", WireName: "A", Type: schema.ListType{Elem: schema.Int32Type},
			Container: schema.FlatListContainer{}},
	)
	v := schema.NewStruct(st).Set("a", []any{int64(9), int64(8)})
	c.Check(encodeToQuery(c, v), gc.Equals, "A.1=9&A.2=8")
}

func (s *querySuite) TestWrappedListOfShapes(c *gc.C) {
	elem := schema.NewStructType("Elem",
		schema.Member{Name: "b", WireName: "B", Type: schema.StringType},
	)
	st := schema.NewStructType("Input",
		schema.Member{Name: "a", WireName: "A", Type: schema.ListType{Elem: elem},
			Container: schema.ListContainer{Member: "m"}},
	)
	v := schema.NewStruct(st).Set("a", []any{
		schema.NewStruct(elem).Set("b", "first"),
		schema.NewStruct(elem).Set("b", "second"),
	})
	c.Check(encodeToQuery(c, v), gc.Equals, "A.m.1.B=first&A.m.2.B=second")
}

func (s *querySuite) TestWrappedMap(c *gc.C) {
	st := schema.NewStructType("Input",
		schema.Member{Name: "a", WireName: "A",
			Type:      schema.MapType{Key: schema.StringType, Value: schema.Int32Type},
			Container: schema.MapContainer{Entry: "entry", Key: "key", Value: "value"}},
	)
	v := schema.NewStruct(st).Set("a", map[string]any{"first": int64(1)})
	c.Check(encodeToQuery(c, v), gc.Equals, "A.entry.1.key=first&A.entry.1.value=1")
}

func (s *querySuite) TestFlatMap(c *gc.C) {
	st := schema.NewStructType("Input",
		schema.Member{Name: "a", WireName: "A",
			Type:      schema.MapType{Key: schema.StringType, Value: schema.StringType},
			Container: schema.FlatMapContainer{Key: "k", Value: "v"}},
	)
	v := schema.NewStruct(st).Set("a", map[string]any{"one": "1", "two": "2"})
	c.Check(encodeToQuery(c, v), gc.Equals, "A.1.k=one&A.1.v=1&A.2.k=two&A.2.v=2")
}

func (s *querySuite) TestFlattenAllIgnoresWrappers(c *gc.C) {
	st := schema.NewStructType("Input",
		schema.Member{Name: "a", WireName: "A", Type: schema.ListType{Elem: schema.StringType},
			Container: schema.ListContainer{Member: "member"}},
	)
	v := schema.NewStruct(st).Set("a", []any{"x", "y"})
	tree, err := transcode.EncodeWith(v, transcode.Options{FlattenAll: true})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(transcode.EncodeQuery(transcode.QueryItems(tree)), gc.Equals, "A.1=x&A.2=y")
}

func (s *querySuite) TestPercentEncoding(c *gc.C) {
	st := schema.NewStructType("Input",
		schema.Member{Name: "a", WireName: "A", Type: schema.StringType},
	)
	v := schema.NewStruct(st).Set("a", "a b+c/d~e")
	c.Check(encodeToQuery(c, v), gc.Equals, "A=a%20b%2Bc%2Fd~e")
}

func (s *querySuite) TestItemsSortedForDeterminism(c *gc.C) {
	st := schema.NewStructType("Input",
		schema.Member{Name: "z", WireName: "Zeta", Type: schema.StringType},
		schema.Member{Name: "a", WireName: "Alpha", Type: schema.StringType},
	)
	v := schema.NewStruct(st).Set("z", "1").Set("a", "2")
	c.Check(encodeToQuery(c, v), gc.Equals, "Alpha=2&Zeta=1")
}

func (s *querySuite) TestUnflattenRejectsGaps(c *gc.C) {
	_, err := transcode.Unflatten([]transcode.Item{
		{Key: "A.1", Value: "x"},
		{Key: "A.3", Value: "y"},
	})
	c.Assert(err, gc.ErrorMatches, `query sequence at "A" is missing index 2`)
}

func (s *querySuite) TestUnflattenRejectsConflicts(c *gc.C) {
	_, err := transcode.Unflatten([]transcode.Item{
		{Key: "A", Value: "x"},
		{Key: "A.B", Value: "y"},
	})
	c.Assert(err, gc.ErrorMatches, `conflicting values at query key "A.B"`)
}

func (s *querySuite) TestParseQueryRoundTrip(c *gc.C) {
	items := []transcode.Item{
		{Key: "A.1", Value: "a b"},
		{Key: "B", Value: "x&y=z"},
	}
	parsed, err := transcode.ParseQuery(transcode.EncodeQuery(items))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(parsed, jc.DeepEquals, items)
}

func (s *querySuite) TestDecodeBadEnumValue(c *gc.C) {
	st := schema.NewStructType("Output",
		schema.Member{Name: "state", WireName: "State",
			Type: schema.EnumType{Name: "State", Values: []string{"running", "stopped"}}},
	)
	tree, err := transcode.Unflatten([]transcode.Item{{Key: "State", Value: "paused"}})
	c.Assert(err, jc.ErrorIsNil)
	_, err = transcode.Decode(st, tree)
	c.Assert(err, gc.ErrorMatches, `cannot decode field "state": "paused" is not a permitted value of enum "State"`)
	c.Check(transcode.IsDecodeError(err), jc.IsTrue)
}

func (s *querySuite) TestDecodeNonNumericInteger(c *gc.C) {
	st := schema.NewStructType("Output",
		schema.Member{Name: "count", WireName: "Count", Type: schema.Int32Type},
	)
	tree, err := transcode.Unflatten([]transcode.Item{{Key: "Count", Value: "many"}})
	c.Assert(err, jc.ErrorIsNil)
	_, err = transcode.Decode(st, tree)
	c.Assert(err, gc.ErrorMatches, `cannot decode field "count": "many" is not a valid 32-bit integer`)
}

func (s *querySuite) TestDecodeMissingRequiredField(c *gc.C) {
	st := schema.NewStructType("Output",
		schema.Member{Name: "id", WireName: "Id", Type: schema.StringType, Required: true},
	)
	_, err := transcode.Decode(st, transcode.NewObject())
	c.Assert(err, gc.ErrorMatches, `cannot decode field "id": missing required field`)
}
