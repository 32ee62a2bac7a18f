package anomaly

import (
	"fmt"
	"strings"
)

// RequiredColumns must be present in every uploaded file.
var RequiredColumns = []string{ColPredictedValuation, ColNetLoss}

// SchemaError reports required columns missing from the input.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("CSV must contain the following columns: %s (missing: %s)",
		strings.Join(RequiredColumns, ", "), strings.Join(e.Missing, ", "))
}
