package model

import (
	"encoding/json"
	"fmt"
	"io"
)

// ExperimentResponse is the body the server returns from a successful
// experiment-creation POST.
type ExperimentResponse struct {
	ExperimentID string `json:"experiment_id"`
}

// DecodeExperimentResponse parses the server's experiment-creation
// response. The publish channel carries no other content type, so unlike
// the decoder this package once offered for multi-format trace ingestion,
// there is nothing to select between here: JSON is the only wire format.
func DecodeExperimentResponse(body io.Reader) (string, error) {
	var resp ExperimentResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding experiment response: %w", err)
	}
	if resp.ExperimentID == "" {
		return "", fmt.Errorf("experiment response missing experiment_id")
	}
	return resp.ExperimentID, nil
}
