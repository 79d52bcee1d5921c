// Package docs holds the OpenAPI document served under /docs/api/v1.
package docs

import _ "embed"

// OpenAPIFile is the document path relative to the project root.
const OpenAPIFile = "docs/v1/openapi.yml"

//go:embed v1/openapi.yml
var OpenAPI []byte
