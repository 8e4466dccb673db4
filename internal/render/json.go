// File path: internal/render/json.go
package render

import (
	"encoding/json"

	"github.com/auditkit/sopcheck/internal/compliance"
)

// JSON renders the report as indented JSON for machine consumers.
func JSON(r compliance.Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
