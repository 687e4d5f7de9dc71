// Package feed decodes alert payloads written by the ingestion pipeline.
//
// Objects come in three shapes: a bare array of records, an object wrapping
// the array under one of WrapperFields, or a single record object. Decode
// recognises them in that order and normalizes every record.
package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ngmaloney/disaster-terminal/internal/awserr"
	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// Shape identifies how records are laid out in a payload
type Shape int

const (
	ShapeUnsupported Shape = iota
	ShapeArray
	ShapeWrapped
	ShapeSingle
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeWrapped:
		return "wrapped"
	case ShapeSingle:
		return "single"
	default:
		return "unsupported"
	}
}

// WrapperFields are checked in this order for an array of records
var WrapperFields = []string{"alerts", "data", "items", "tweets", "disasters", "records"}

// recordFields mark an object as a single alert record
var recordFields = []string{
	"id", "text", "created_at", "createdAt", "timestamp",
	"severity", "disaster_type", "disasterType", "location", "coordinates",
}

// Envelope is a payload after shape detection
type Envelope struct {
	Shape   Shape
	Wrapper string // set for ShapeWrapped
	Records []gjson.Result
}

// Errors returned inside ParseError
var (
	ErrInvalidJSON      = errors.New("invalid JSON")
	ErrUnsupportedShape = errors.New("unsupported payload shape")
)

// ParseError reports a payload that could not be decoded
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is lets callers match any ParseError with awserr.ErrParse
func (e *ParseError) Is(target error) bool { return target == awserr.ErrParse }

// Sniff detects the payload shape without normalizing records
func Sniff(key string, body []byte) (*Envelope, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ParseError{Key: key, Err: ErrInvalidJSON}
	}

	root := gjson.ParseBytes(body)
	switch {
	case root.IsArray():
		return &Envelope{Shape: ShapeArray, Records: objects(root)}, nil
	case root.IsObject():
		for _, field := range WrapperFields {
			if v := root.Get(field); v.IsArray() {
				return &Envelope{Shape: ShapeWrapped, Wrapper: field, Records: objects(v)}, nil
			}
		}
		if isRecord(root) {
			return &Envelope{Shape: ShapeSingle, Records: []gjson.Result{root}}, nil
		}
	}
	return nil, &ParseError{Key: key, Err: ErrUnsupportedShape}
}

// Decode sniffs the payload and normalizes every record in it. fetchedAt
// stands in for missing or unparsable timestamps.
func Decode(key string, body []byte, fetchedAt time.Time) ([]models.Alert, error) {
	env, err := Sniff(key, body)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.Alert, 0, len(env.Records))
	for i, rec := range env.Records {
		alerts = append(alerts, Normalize(rec, key, i, fetchedAt))
	}
	return alerts, nil
}

// objects keeps only the object elements of an array
func objects(arr gjson.Result) []gjson.Result {
	out := make([]gjson.Result, 0)
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			out = append(out, v)
		}
		return true
	})
	return out
}

func isRecord(obj gjson.Result) bool {
	for _, f := range recordFields {
		if obj.Get(f).Exists() {
			return true
		}
	}
	return false
}
