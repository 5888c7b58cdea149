package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// SchemaField is the key used for errors about the body as a whole.
const SchemaField = "_schema"

// DefaultMaxBodyBytes caps request bodies read by [Decoder.Decode].
const DefaultMaxBodyBytes = 1 << 20

// Messages returned for request bodies that cannot be decoded.
const (
	MsgRequired      = "Missing data for required field."
	MsgUnknownField  = "Unknown field."
	MsgInvalidInput  = "Invalid input type."
	MsgInvalidEmail  = "Not a valid email address."
	MsgInvalidInt    = "Not a valid integer."
	MsgInvalidString = "Not a valid string."
	MsgInvalidBool   = "Not a valid boolean."
	MsgInvalidNumber = "Not a valid number."
	MsgInvalidValue  = "Invalid value."
	MsgBodyTooLarge  = "Request body is too large."
)

// Decoder decodes JSON request bodies into structs and validates them with
// go-playground/validator. Every problem is reported per field, keyed by the
// field's JSON name, in a single [sserr.CodeValidation] error.
//
// Request structs should use pointer fields: a nil pointer means the key was
// absent, so `validate:"required"` reads as "must be present" and zero
// values stay subject to range rules.
//
//	type addItem struct {
//	    ProductID *int64 `json:"product_id" validate:"required,gte=0"`
//	    Quantity  *int   `json:"quantity" validate:"required,quantity"`
//	}
//
// A Decoder is safe for concurrent use once its aliases are registered.
type Decoder struct {
	validate *validator.Validate
	messages map[string]string
	maxBytes int64
	fields   sync.Map // reflect.Type -> map[string][]int
}

// NewDecoder returns a Decoder with the default body limit.
func NewDecoder() *Decoder {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	return &Decoder{
		validate: v,
		messages: map[string]string{},
		maxBytes: DefaultMaxBodyBytes,
	}
}

// RegisterAlias registers a validator alias for tags and the message to
// report when it fails, e.g.
//
//	d.RegisterAlias("quantity", "gte=1,lte=5",
//	    "Must be greater than or equal to 1 and less than or equal to 5.")
func (d *Decoder) RegisterAlias(alias, tags, message string) *Decoder {
	d.validate.RegisterAlias(alias, tags)
	d.messages[alias] = message
	return d
}

// Decode reads r's body into dst, which must be a pointer to a struct.
func (d *Decoder) Decode(r *http.Request, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return sserr.Newf(sserr.CodeInternal, "httpx: decode target must be a struct pointer, got %T", dst)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, d.maxBytes+1))
	if err != nil {
		return sserr.Wrap(err, sserr.CodeValidation, "failed to read request body")
	}
	if int64(len(body)) > d.maxBytes {
		return sserr.Validation(map[string][]string{SchemaField: {MsgBodyTooLarge}})
	}

	raw := map[string]json.RawMessage{}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 {
		if trimmed[0] != '{' || json.Unmarshal(trimmed, &raw) != nil {
			return sserr.Validation(map[string][]string{SchemaField: {MsgInvalidInput}})
		}
	}

	fields := map[string][]string{}
	index := d.fieldIndex(rv.Elem().Type())
	for key, value := range raw {
		path, ok := index[key]
		if !ok {
			fields[key] = append(fields[key], MsgUnknownField)
			continue
		}
		target := rv.Elem().FieldByIndex(path)
		if err := json.Unmarshal(value, target.Addr().Interface()); err != nil {
			target.Set(reflect.Zero(target.Type()))
			fields[key] = append(fields[key], typeMessage(target.Type()))
		}
	}

	if err := d.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return sserr.Wrap(err, sserr.CodeInternal, "httpx: validation failed to run")
		}
		for _, fe := range verrs {
			name := fe.Field()
			if _, seen := fields[name]; seen {
				continue
			}
			fields[name] = append(fields[name], d.message(fe))
		}
	}

	if len(fields) > 0 {
		return sserr.Validation(fields)
	}
	return nil
}

// Struct validates an already populated struct with the same messages as
// [Decoder.Decode].
func (d *Decoder) Struct(v any) error {
	err := d.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return sserr.Wrap(err, sserr.CodeInternal, "httpx: validation failed to run")
	}
	fields := map[string][]string{}
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], d.message(fe))
	}
	return sserr.Validation(fields)
}

func (d *Decoder) message(fe validator.FieldError) string {
	if msg, ok := d.messages[fe.Tag()]; ok {
		return msg
	}
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "email":
		return MsgInvalidEmail
	case "min":
		if isString {
			return fmt.Sprintf("Shorter than minimum length %s.", fe.Param())
		}
		return fmt.Sprintf("Must be greater than or equal to %s.", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("Longer than maximum length %s.", fe.Param())
		}
		return fmt.Sprintf("Must be less than or equal to %s.", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s.", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s.", fe.Param())
	default:
		return MsgInvalidValue
	}
}

// fieldIndex maps JSON names of t's exported fields to their index paths.
func (d *Decoder) fieldIndex(t reflect.Type) map[string][]int {
	if cached, ok := d.fields.Load(t); ok {
		return cached.(map[string][]int)
	}
	index := make(map[string][]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if name := jsonName(sf); name != "" {
			index[name] = sf.Index
		}
	}
	d.fields.Store(t, index)
	return index
}

func jsonName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return sf.Name
	}
	return name
}

func typeMessage(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return MsgInvalidInt
	case reflect.String:
		return MsgInvalidString
	case reflect.Bool:
		return MsgInvalidBool
	case reflect.Float32, reflect.Float64:
		return MsgInvalidNumber
	default:
		return MsgInvalidValue
	}
}
