package xmapping

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type plain struct {
	Name string `bson:"name"`
}

type withExtra struct {
	ID    string         `bson:"_id"`
	Name  string         `bson:"name"`
	Extra map[string]any `bson:"-"`
}

type twoCased struct {
	Extra map[string]any `bson:"-"`
	EXTRA map[string]any `bson:"-"`
}

type innerA struct {
	Extra map[string]any `bson:"-"`
}

type innerB struct {
	Extra map[string]any `bson:"-"`
}

type promotedTwice struct {
	innerA
	innerB
}

type shadowed struct {
	innerA
	Extra map[string]any `bson:"-"`
}

type hiddenExtra struct {
	Name  string `bson:"name"`
	extra map[string]any
}

type methodExtra struct {
	Name  string `bson:"name"`
	props map[string]any
}

func (m *methodExtra) Extra() map[string]any {
	if m.props == nil {
		m.props = make(map[string]any)
	}
	return m.props
}

type nilMethod struct {
	Name string `bson:"name"`
}

func (*nilMethod) Extra() map[string]any { return nil }

type fieldAndMethod struct {
	extra map[string]any
}

func (f *fieldAndMethod) Extra() map[string]any { return f.extra }

type taggedExtra struct {
	Props map[string]any `bson:"extra"`
}

type wrongType struct {
	Extra string `bson:"-"`
}

type inlineExtra struct {
	Name  string         `bson:"name"`
	Extra map[string]any `bson:",inline"`
}

type Base struct {
	Extra map[string]any `bson:"-"`
}

type derived struct {
	*Base
	Name string `bson:"name"`
}

type Address struct {
	City string `bson:"city"`
}

type inlinedStruct struct {
	Address `bson:",inline"`
	Extra   map[string]any `bson:"-"`
}
