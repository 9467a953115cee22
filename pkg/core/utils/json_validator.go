package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/go-playground/validator/v10"
	hjson "github.com/hjson/hjson-go/v4"
)

// ErrUnparseable is returned by SmartParse when no strategy yields a document
// that decodes into the target.
var ErrUnparseable = errors.New("all parsing strategies failed")

var validate = validator.New()

// ValidateStruct runs the `validate` struct tags of v.
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("JSON_SCHEMA_VIOLATION: %w", err)
	}
	return nil
}

// RepairJSON fixes common hand-editing damage: single quotes, trailing
// commas, unquoted keys, unclosed objects and comments.
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %v", err)
	}
	return repaired, nil
}

// ParseHJSON parses Human-friendly JSON (Hjson) and returns standard JSON.
// Object key order is not preserved.
func ParseHJSON(data []byte) ([]byte, error) {
	var result interface{}
	if err := hjson.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("HJSON_PARSE_ERROR: %v", err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("JSON_MARSHAL_ERROR: %v", err)
	}
	return out, nil
}

// SmartParse decodes input into target, trying in order:
// 1. Standard JSON
// 2. JSON repair
// 3. Hjson (most lenient)
// It returns the document that finally decoded and whether it had to be
// rewritten by one of the lenient strategies.
func SmartParse(input []byte, target interface{}) (used []byte, repaired bool, err error) {
	strictErr := json.Unmarshal(input, target)
	if strictErr == nil {
		return input, false, nil
	}

	if fixed, err := RepairJSON(string(input)); err == nil && fixed != "" {
		reset(target)
		if err := json.Unmarshal([]byte(fixed), target); err == nil {
			return []byte(fixed), true, nil
		}
	}

	if converted, err := ParseHJSON(input); err == nil && !bytes.Equal(converted, []byte("null")) {
		reset(target)
		if err := json.Unmarshal(converted, target); err == nil {
			return converted, true, nil
		}
	}

	return nil, false, fmt.Errorf("%w: %v", ErrUnparseable, strictErr)
}

// reset zeroes what a failed decode attempt may have half-filled.
func reset(target interface{}) {
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
}
