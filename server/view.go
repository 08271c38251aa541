package main

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/go-fuego/fuego"
	"gopkg.in/yaml.v3"
)

// View is an API answer that browsers get as an HTML page. fuego picks the
// encoding from the Accept header: JSON, XML and YAML clients get Data,
// text/html clients get Page(Data).
type View[T any] struct {
	Data T
	Page func(T) fuego.Gomponent `json:"-" yaml:"-"`
}

var (
	_ fuego.CtxRenderer = View[any]{}
	_ json.Marshaler    = View[any]{}
	_ xml.Marshaler     = View[any]{}
	_ yaml.Marshaler    = View[any]{}
	_ fmt.Stringer      = View[any]{}
)

func newView[T any](data T, page func(T) fuego.Gomponent) *View[T] {
	return &View[T]{Data: data, Page: page}
}

func (v View[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Data)
}

func (v View[T]) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(v.Data, start)
}

func (v View[T]) MarshalYAML() (any, error) {
	return v.Data, nil
}

func (v View[T]) String() string {
	return fmt.Sprintf("%v", v.Data)
}

func (v View[T]) Render(_ context.Context, w io.Writer) error {
	if v.Page == nil {
		return json.NewEncoder(w).Encode(v.Data)
	}
	return v.Page(v.Data).Render(w)
}
