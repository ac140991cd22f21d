// Package translate converts flat product payloads between the console's
// camelCase convention and the remote inventory API's snake_case convention.
// Only top-level keys are renamed; values pass through untouched apart from
// the declared numeric coercions on ingress.
package translate

import "strconv"

// clientToServer maps every known client field to its server name. Fields
// whose names coincide (id, name, description, price, category, supplier) are
// listed anyway so the table is the single catalogue of known fields.
var clientToServer = map[string]string{
	"id":                    "id",
	"name":                  "name",
	"description":           "description",
	"price":                 "price",
	"stockQuantity":         "stock_quantity",
	"category":              "category",
	"supplier":              "supplier",
	"expiryDate":            "expiry_date",
	"minimumStockThreshold": "minimum_stock_threshold",
	"createdAt":             "created_at",
	"updatedAt":             "updated_at",
}

var serverToClient = func() map[string]string {
	m := make(map[string]string, len(clientToServer))
	for client, server := range clientToServer {
		m[server] = client
	}
	return m
}()

// ToServer renames the top-level keys of a client payload to the server
// convention. Unknown keys pass through unchanged.
func ToServer(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if server, ok := clientToServer[key]; ok {
			key = server
		}
		out[key] = value
	}
	return out
}

// ToClient renames the top-level keys of a server payload to the client
// convention and applies the declared ingress coercions: the server is known
// to transmit price as a decimal string and stock_quantity occasionally as a
// string, both of which become numbers here. Values that fail to coerce are
// left as-is so schema validation downstream can reject the record instead of
// this layer guessing.
func ToClient(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if client, ok := serverToClient[key]; ok {
			key = client
		}
		switch key {
		case "price":
			value = coerceFloat(value)
		case "stockQuantity", "minimumStockThreshold":
			value = coerceInt(value)
		}
		out[key] = value
	}
	return out
}

func coerceFloat(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return v
	}
	return f
}

func coerceInt(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return v
	}
	return n
}
