package swagger

import _ "embed"

// OpenAPI is the embedded OpenAPI document of the assignment API.
//
//go:embed openapi.yaml
var OpenAPI []byte
