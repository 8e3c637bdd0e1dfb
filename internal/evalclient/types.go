package evalclient

import "fmt"

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	Code        string `json:"code"`
	PuzzleID    int    `json:"puzzleId"`
	PuzzleName  string `json:"puzzleName,omitempty"`
	PuzzleType  string `json:"puzzleType"`
	Difficulty  string `json:"difficulty,omitempty"`
	Description string `json:"description,omitempty"`
}

type EvaluateResponse struct {
	Correctness int    `json:"correctness"`
	Quality     int    `json:"quality"`
	Feedback    string `json:"feedback,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// StatusError is a non-2xx answer from the evaluator.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("evaluator api error: status=%d body=%s", e.Code, e.Body)
}
