// Package fingerprint derives a stable identity for an export configuration.
//
// Two configurations that differ only in object key order, number spelling
// (1, 1.0, 1e0) or transient request fields produce the same fingerprint.
// Array order is significant.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Length is the size of a fingerprint in hex characters.
const Length = sha256.Size * 2

// maxPlainExponent bounds the exponents rendered as plain decimal text.
// Beyond it numbers are written as <digits>e<exp> so the canonical form stays
// proportional to the input rather than to the magnitude.
const maxPlainExponent = 64

// ErrUnsupportedValue is returned for values that have no canonical JSON form.
var ErrUnsupportedValue = errors.New("fingerprint: unsupported value")

// transientKeys are top-level fields that describe the request rather than the worksheet.
var transientKeys = map[string]struct{}{
	"timestamp":   {},
	"requestedAt": {},
	"generatedAt": {},
	"clientTime":  {},
}

// Fingerprint is a lowercase hex SHA-256 digest of a canonical configuration.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Valid reports whether f has the shape of a computed fingerprint.
func (f Fingerprint) Valid() bool {
	if len(f) != Length {
		return false
	}
	for _, c := range []byte(f) {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Compute fingerprints a decoded configuration object.
func Compute(cfg map[string]any) (Fingerprint, error) {
	filtered := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if _, skip := transientKeys[k]; skip {
			continue
		}
		filtered[k] = v
	}
	canonical, err := Canonicalize(filtered)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return Fingerprint(hex.EncodeToString(sum[:])), nil
}

// FromJSON decodes raw as a JSON object and fingerprints it.
func FromJSON(raw []byte) (Fingerprint, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var cfg map[string]any
	if err := dec.Decode(&cfg); err != nil {
		return "", fmt.Errorf("decode configuration: %w", err)
	}
	if cfg == nil {
		return "", fmt.Errorf("%w: configuration must be a JSON object", ErrUnsupportedValue)
	}
	return Compute(cfg)
}

// Canonicalize renders v as canonical JSON: sorted object keys at every
// level, arrays in order, numbers normalised to their value.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeString(buf, val)
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return fmt.Errorf("%w: number %q", ErrUnsupportedValue, val)
		}
		writeDecimal(buf, d)
	case float64:
		return writeFloat(buf, val)
	case float32:
		return writeFloat(buf, float64(val))
	case int:
		writeDecimal(buf, decimal.NewFromInt(int64(val)))
	case int32:
		writeDecimal(buf, decimal.NewFromInt32(val))
	case int64:
		writeDecimal(buf, decimal.NewFromInt(val))
	case map[string]any:
		return writeObject(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return writeReflect(buf, v)
	}
	return nil
}

func writeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	buf.Write(encoded)
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: non-finite number", ErrUnsupportedValue)
	}
	writeDecimal(buf, decimal.NewFromFloat(f))
	return nil
}

// writeDecimal writes d in a spelling-independent form. The coefficient is
// stripped of trailing zeros first, so 1, 1.0, 10e-1 and 1e0 all normalise
// to coefficient 1, exponent 0.
func writeDecimal(buf *bytes.Buffer, d decimal.Decimal) {
	digits := d.Coefficient().String()
	if digits == "0" {
		buf.WriteByte('0')
		return
	}
	trimmed := strings.TrimRight(digits, "0")
	exp := int64(d.Exponent()) + int64(len(digits)-len(trimmed))

	if exp >= -maxPlainExponent && exp <= maxPlainExponent {
		coef, _ := new(big.Int).SetString(trimmed, 10)
		buf.WriteString(decimal.NewFromBigInt(coef, int32(exp)).String())
		return
	}
	buf.WriteString(trimmed)
	buf.WriteByte('e')
	buf.WriteString(strconv.FormatInt(exp, 10))
}

// writeReflect handles typed slices and maps built in Go code rather than decoded from JSON.
func writeReflect(buf *bytes.Buffer, v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return writeValue(buf, items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key %s", ErrUnsupportedValue, rv.Type().Key())
		}
		obj := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			obj[iter.Key().String()] = iter.Value().Interface()
		}
		return writeObject(buf, obj)
	case reflect.Int8, reflect.Int16:
		return writeValue(buf, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		writeDecimal(buf, decimal.NewFromBigInt(new(big.Int).SetUint64(rv.Uint()), 0))
		return nil
	case reflect.String:
		return writeString(buf, rv.String())
	case reflect.Bool:
		return writeValue(buf, rv.Bool())
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}
