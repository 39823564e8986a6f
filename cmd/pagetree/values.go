package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/pagetree/value"
)

// parseValue reads kind:payload. Text without a known kind is a string.
func parseValue(s string) (value.Value, error) {
	kind, payload, ok := strings.Cut(s, ":")
	if !ok {
		return value.String(s), nil
	}
	switch kind {
	case "int":
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("invalid int %q: %w", payload, err)
		}
		return value.Int(n), nil
	case "long":
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("invalid long %q: %w", payload, err)
		}
		return value.MutableLong(n), nil
	case "str":
		return value.String(payload), nil
	case "blob":
		b, err := hex.DecodeString(payload)
		if err != nil {
			return value.Value{}, fmt.Errorf("invalid blob %q: %w", payload, err)
		}
		return value.Blob(b), nil
	default:
		return value.String(s), nil
	}
}

// formatValue is the inverse of parseValue.
func formatValue(v value.Value) string {
	switch v.Kind() {
	case value.KindInt:
		return "int:" + strconv.FormatInt(v.AsInt(), 10)
	case value.KindMutableLong:
		return "long:" + strconv.FormatInt(v.AsInt(), 10)
	case value.KindBlob:
		return "blob:" + hex.EncodeToString(v.AsBytes())
	default:
		return "str:" + v.AsString()
	}
}
