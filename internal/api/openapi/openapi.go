// Пакет openapi: встроенный OpenAPI контракт JSON API.
package openapi

import _ "embed"

// Spec: документ OpenAPI 3.0 в формате YAML.
//
//go:embed openapi.yaml
var Spec []byte
