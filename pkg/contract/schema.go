package contract

// JSONSchema renders the contract as a JSON Schema object, the form used in action
// catalogues and OpenAPI documents.
func (c *Contract) JSONSchema() map[string]interface{} {
	schema := objectSchema(c.Fields)
	if c.Name != "" {
		schema["title"] = c.Name
	}
	return schema
}

func objectSchema(fields []Field) map[string]interface{} {
	props := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if req := requiredNames(fields); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

func fieldSchema(f Field) map[string]interface{} {
	var schema map[string]interface{}
	switch f.Kind {
	case KindObject:
		if len(f.Fields) > 0 {
			schema = objectSchema(f.Fields)
		} else {
			schema = map[string]interface{}{"type": "object"}
		}
	case KindArray:
		schema = map[string]interface{}{"type": "array"}
		if f.Elem != nil {
			schema["items"] = fieldSchema(*f.Elem)
		}
	case KindAny, "":
		schema = map[string]interface{}{}
	default:
		schema = map[string]interface{}{"type": string(f.Kind)}
	}
	if f.Description != "" {
		schema["description"] = f.Description
	}
	return schema
}
