package httpapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const createOrderSchema = `{
  "type": "object",
  "required": ["payment_method"],
  "properties": {
    "shipping_address":  {"type": "string", "maxLength": 500},
    "shipping_city":     {"type": "string", "maxLength": 100},
    "shipping_zip_code": {"type": "string", "maxLength": 20},
    "payment_method":    {"type": "string", "minLength": 1},
    "card_number":       {"type": "string", "maxLength": 32},
    "card_expiry":       {"type": "string", "maxLength": 7},
    "card_cvv":          {"type": "string", "maxLength": 4},
    "card_holder_name":  {"type": "string", "maxLength": 100}
  }
}`

const cartItemSchema = `{
  "type": "object",
  "required": ["quantity"],
  "properties": {
    "product_id": {"type": "integer", "minimum": 1},
    "quantity":   {"type": "integer"}
  }
}`

var (
	createOrderLoader = gojsonschema.NewStringLoader(createOrderSchema)
	cartItemLoader    = gojsonschema.NewStringLoader(cartItemSchema)
)

func validateJSON(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
	}
	return nil
}
