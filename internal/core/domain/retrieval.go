package domain

import "fmt"

// RetrievalMethod identifies which index (or combination) produced a result.
type RetrievalMethod string

const (
	MethodDense  RetrievalMethod = "dense"
	MethodSparse RetrievalMethod = "sparse"
	MethodHybrid RetrievalMethod = "hybrid"
)

// ParseRetrievalMethod validates a caller-supplied method name. An empty
// string selects hybrid, the default mode.
func ParseRetrievalMethod(s string) (RetrievalMethod, error) {
	switch RetrievalMethod(s) {
	case MethodDense, MethodSparse, MethodHybrid:
		return RetrievalMethod(s), nil
	case "":
		return MethodHybrid, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse retrieval method", fmt.Errorf("unknown method %q", s))
	}
}

// RetrievalResult is a transient per-query value. Score is normalized to
// [0,1] and comparable across methods after fusion.
type RetrievalResult struct {
	Passage Passage         `json:"passage"`
	Score   float64         `json:"score"`
	Method  RetrievalMethod `json:"method"`
}
