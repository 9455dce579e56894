/*
Copyright (c) The SpinDrive Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package telemetry exposes arbitrary structures field by field for
// logging, persistence and metric export. Rather than writing bespoke
// serialization per structure, consumers implement Visitor (or pass a
// VisitorFunc) and Walk drives it over every exported leaf field with a
// dotted snake_case name.
package telemetry

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Visitor receives one callback per leaf field.
type Visitor interface {
	Visit(name string, value any)
}

// VisitorFunc adapts a plain function to the Visitor interface.
type VisitorFunc func(name string, value any)

// Visit calls f(name, value).
func (f VisitorFunc) Visit(name string, value any) {
	f(name, value)
}

// Walk visits every exported leaf field of v, which must be a struct or
// a pointer to one. Nested structs contribute dotted name segments,
// array elements are indexed. Field names come from the `telemetry`
// struct tag when present and are derived from the Go name otherwise;
// a tag of "-" skips the field.
func Walk(prefix string, v any, visitor Visitor) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return fmt.Errorf("telemetry: cannot walk nil %s", rv.Type())
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("telemetry: cannot walk %s, need a struct", rv.Kind())
	}
	walkStruct(prefix, rv, visitor)
	return nil
}

// Map collects the result of a Walk into a flat map.
func Map(v any) (map[string]any, error) {
	out := map[string]any{}
	err := Walk("", v, VisitorFunc(func(name string, value any) {
		out[name] = value
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func walkStruct(prefix string, rv reflect.Value, visitor Visitor) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("telemetry")
		if name == "-" {
			continue
		}
		if name == "" {
			name = snakeCase(field.Name)
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		walkValue(name, rv.Field(i), visitor)
	}
}

func walkValue(name string, rv reflect.Value, visitor Visitor) {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		walkStruct(name, rv, visitor)
	case reflect.Array, reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			walkValue(name+"."+strconv.Itoa(i), rv.Index(i), visitor)
		}
	default:
		visitor.Visit(name, rv.Interface())
	}
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
