package biz

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Rating bounds, inclusive.
const (
	RatingMin = 1
	RatingMax = 5
)

var (
	validate   = validator.New(validator.WithRequiredStructEnabled())
	ratingRule = fmt.Sprintf("gte=%d,lte=%d", RatingMin, RatingMax)
)

// ratingFields lists the properties of an add/update body in check order.
var ratingFields = []struct {
	name string
	kind string
}{
	{name: "title", kind: "string"},
	{name: "rating", kind: "number"},
}

// ParseRatingInput checks a decoded JSON body against
// {title: string, rating: number} with no other properties, reporting the
// first violation: required properties, then unexpected ones, then property
// types.
func ParseRatingInput(body any) (*RatingInput, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, SchemaError(fmt.Sprintf("%s is not of type 'object'", repr(body)))
	}

	for _, f := range ratingFields {
		if _, present := obj[f.name]; !present {
			return nil, SchemaError(fmt.Sprintf("'%s' is a required property", f.name))
		}
	}

	var extra []string
	for k := range obj {
		if k != "title" && k != "rating" {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		quoted := make([]string, len(extra))
		for i, k := range extra {
			quoted[i] = "'" + k + "'"
		}
		verb := "was"
		if len(extra) > 1 {
			verb = "were"
		}
		return nil, SchemaError(fmt.Sprintf("Additional properties are not allowed (%s %s unexpected)",
			strings.Join(quoted, ", "), verb))
	}

	for _, f := range ratingFields {
		if v := obj[f.name]; !isKind(v, f.kind) {
			return nil, SchemaError(fmt.Sprintf("%s is not of type '%s'", repr(v), f.kind))
		}
	}

	rating, _ := toFloat(obj["rating"])
	return &RatingInput{Title: obj["title"].(string), Rating: rating}, nil
}

// CheckRating enforces RatingMin <= rating <= RatingMax.
func CheckRating(rating float64) error {
	if err := validate.Var(rating, ratingRule); err != nil {
		return RatingRangeError()
	}
	return nil
}

// CheckListLimit enforces min <= limit <= max.
func CheckListLimit(limit, min, max int) error {
	if err := validate.Var(limit, fmt.Sprintf("min=%d,max=%d", min, max)); err != nil {
		return LimitRangeError(min, max)
	}
	return nil
}

func isKind(v any, kind string) bool {
	switch kind {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := toFloat(v)
		return ok
	}
	return false
}

// toFloat accepts the numeric types a JSON decoder may produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func repr(v any) string {
	switch x := v.(type) {
	case string:
		return "'" + x + "'"
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
