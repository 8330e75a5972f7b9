package xmapping_test

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xmgo/pkg/mapping/xmapping"
)

type Product struct {
	SKU   string         `bson:"sku"`
	Extra map[string]any `bson:"-"`
}

type Twin struct {
	Extra map[string]any `bson:"-"`
	EXTRA map[string]any `bson:"-"`
}

func ExampleTypeMap() {
	conv, err := xmapping.NewNamedConvention("Extra")
	if err != nil {
		fmt.Println(err)
		return
	}
	tm, err := xmapping.TypeMapFor[Product](conv)
	if err != nil {
		fmt.Println(err)
		return
	}

	raw, _ := bson.Marshal(bson.D{{Key: "sku", Value: "A-1"}, {Key: "color", Value: "red"}})
	var p Product
	if err := tm.Decode(raw, &p); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(p.SKU, p.Extra["color"])

	doc, _ := tm.Encode(p)
	fmt.Println(len(doc), doc[1].Key)
	// Output:
	// A-1 red
	// 2 color
}

func ExampleNamedConvention_ambiguous() {
	conv, _ := xmapping.NewNamedConvention("extra", xmapping.WithFoldCase())
	_, err := xmapping.TypeMapFor[Twin](conv)
	fmt.Println(errors.Is(err, xmapping.ErrAmbiguousMember))
	// Output: true
}
