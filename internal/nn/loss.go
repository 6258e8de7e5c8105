package nn

import (
	"fmt"
	"math"
)

// LogSoftmax returns log(softmax(logits)) computed with the max-shift trick.
func LogSoftmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(v - maxLogit)
	}
	lse := maxLogit + math.Log(sum)

	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = v - lse
	}
	return out
}

// CrossEntropy returns -log(softmax(logits)[label]).
func CrossEntropy(logits []float64, label int) (float64, error) {
	if label < 0 || label >= len(logits) {
		return 0, fmt.Errorf("label %d out of range for %d classes", label, len(logits))
	}
	return -LogSoftmax(logits)[label], nil
}

// Argmax returns the index of the largest logit, the first one on ties.
func Argmax(logits []float64) int {
	best := -1
	for i, v := range logits {
		if best < 0 || v > logits[best] {
			best = i
		}
	}
	return best
}
