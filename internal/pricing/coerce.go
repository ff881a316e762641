package pricing

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// decimalLiteral matches the decimal forms accepted when a string is read as a number.
var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ToNumber coerces a decoded JSON value to a float64, falling back to 0 for
// anything that does not read as a number. NaN is never returned.
//
// Strings are trimmed; the empty string is 0. Decimal, exponent, 0x/0o/0b and
// signed Infinity forms are accepted. A single-element array coerces its
// element and an empty array is 0. Booleans are 0 or 1.
func ToNumber(v any) float64 {
	n := toNumber(v)
	if math.IsNaN(n) {
		return 0
	}
	return n
}

func toNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		return parseNumericString(t.String())
	case string:
		return parseNumericString(t)
	case Amount:
		return float64(t)
	case []any:
		switch len(t) {
		case 0:
			return 0
		case 1:
			return toNumber(t[0])
		}
		return math.NaN()
	default:
		return math.NaN()
	}
}

func parseNumericString(s string) float64 {
	s = strings.TrimSpace(strings.Trim(s, "\uFEFF"))
	if s == "" {
		return 0
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			return parseRadix(s[2:], base)
		}
	}

	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out-of-range literals still carry ±Inf or ±0.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

func parseRadix(digits string, base int) float64 {
	if strings.ContainsAny(digits, "+-_") {
		return math.NaN()
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return math.NaN()
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}

// Amount is a float64 that accepts any JSON value when decoded, using the
// ToNumber rule. It always encodes as a plain JSON number.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount(ToNumber(decodeLoose(data)))
	return nil
}

// MarshalJSON implements json.Marshaler. Infinite values, which JSON cannot
// carry, are written as 0.
func (a Amount) MarshalJSON() ([]byte, error) {
	f := float64(a)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		f = 0
	}
	return json.Marshal(f)
}

// Items is a list of quote items that decodes leniently: a non-array value
// yields an empty list and non-object elements yield zero-valued items.
type Items []QuoteItem

// UnmarshalJSON implements json.Unmarshaler.
func (items *Items) UnmarshalJSON(data []byte) error {
	*items = nil
	for _, raw := range rawElements(data) {
		var r struct {
			ProductID   any    `json:"productId"`
			Description any    `json:"description"`
			Quantity    Amount `json:"quantity"`
			UnitPrice   Amount `json:"unitPrice"`
			TaxRate     Amount `json:"taxRate"`
			Discount    Amount `json:"discount"`
		}
		if isObject(raw) {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			_ = dec.Decode(&r)
		}

		it := QuoteItem{
			Quantity:  r.Quantity,
			UnitPrice: r.UnitPrice,
			TaxRate:   r.TaxRate,
			Discount:  r.Discount,
		}
		if desc, ok := r.Description.(string); ok {
			it.Description = desc
		}
		if id := ToNumber(r.ProductID); id > 0 && id == math.Trunc(id) && id < math.MaxInt64 {
			pid := int64(id)
			it.ProductID = &pid
		}
		*items = append(*items, it)
	}
	return nil
}

// Charges is a list of additional charges that decodes leniently, like Items.
type Charges []AdditionalCharge

// UnmarshalJSON implements json.Unmarshaler.
func (charges *Charges) UnmarshalJSON(data []byte) error {
	*charges = nil
	for _, raw := range rawElements(data) {
		var r struct {
			Type   any    `json:"type"`
			Amount Amount `json:"amount"`
		}
		if isObject(raw) {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			_ = dec.Decode(&r)
		}

		c := AdditionalCharge{Amount: r.Amount}
		if typ, ok := r.Type.(string); ok {
			c.Type = ChargeType(typ)
		}
		*charges = append(*charges, c)
	}
	return nil
}

func decodeLoose(data []byte) any {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func rawElements(data []byte) []json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil
	}
	return elems
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
