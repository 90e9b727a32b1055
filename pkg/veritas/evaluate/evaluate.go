// Package evaluate scores inferred labels against ground truth on held-out
// nodes only. The positive class is label.Real.
package evaluate

import (
	"fmt"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/label"
)

// Confusion holds the confusion counts over held-out nodes.
type Confusion struct {
	TP, TN, FP, FN int
}

// Scores are the metrics derived from a Confusion.
type Scores struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Score compares predicted against truth at every index whose supervision is
// Unknown. Supervised positions are never scored.
func Score(predicted []label.Class, supervision []label.Supervision, truth []label.Class) (Confusion, error) {
	if len(predicted) != len(truth) || len(supervision) != len(truth) {
		return Confusion{}, fmt.Errorf("score: %d predictions, %d supervision, %d truth: %w",
			len(predicted), len(supervision), len(truth), internalerr.ErrInvalidInput)
	}
	var c Confusion
	for i, sup := range supervision {
		if sup.IsKnown() {
			continue
		}
		pos := predicted[i] == label.Real
		switch {
		case pos && truth[i] == label.Real:
			c.TP++
		case pos:
			c.FP++
		case truth[i] == label.Real:
			c.FN++
		default:
			c.TN++
		}
	}
	return c, nil
}

// Total is the number of scored (held-out) nodes.
func (c Confusion) Total() int {
	return c.TP + c.TN + c.FP + c.FN
}

// Accuracy is (TP+TN)/total, 0 when nothing was scored.
func (c Confusion) Accuracy() float64 {
	return ratio(c.TP+c.TN, c.Total())
}

// Precision is TP/(TP+FP), 0 when nothing was predicted positive.
func (c Confusion) Precision() float64 {
	return ratio(c.TP, c.TP+c.FP)
}

// Recall is TP/(TP+FN), 0 when there were no positives.
func (c Confusion) Recall() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

// F1 is the harmonic mean of precision and recall, 0 when both are 0.
func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Scores computes all derived metrics.
func (c Confusion) Scores() Scores {
	return Scores{
		Accuracy:  c.Accuracy(),
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
