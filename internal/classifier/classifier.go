// Package classifier loads a pre-trained fraud model artifact and applies it
// to transactions.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
)

// Encoded fields, in feature order after the two numeric features.
const (
	FieldMerchant      = "merchant"
	FieldCategory      = "category"
	FieldPaymentMethod = "payment_method"
	FieldLocation      = "location"
)

var categoricalFields = [...]string{FieldMerchant, FieldCategory, FieldPaymentMethod, FieldLocation}

// FeatureCount is the length of the vector passed to Model.Predict:
// amount, base risk, then one code per categorical field.
const FeatureCount = 2 + len(categoricalFields)

// Encoder maps category names to the integer codes the model was trained on.
type Encoder struct {
	index   map[string]int
	Classes []string `json:"classes"`
}

// NewEncoder builds an encoder whose codes are the positions in classes.
func NewEncoder(classes []string) (*Encoder, error) {
	e := &Encoder{Classes: classes}
	if err := e.build(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encoder) build() error {
	e.index = make(map[string]int, len(e.Classes))
	for i, class := range e.Classes {
		if _, dup := e.index[class]; dup {
			return fmt.Errorf("%w: duplicate encoder class %q", common.ErrInvalidConfig, class)
		}
		e.index[class] = i
	}
	return nil
}

// Encode returns the code for value or ErrUnknownCategory.
func (e *Encoder) Encode(value string) (int, error) {
	code, ok := e.index[value]
	if !ok {
		return 0, fmt.Errorf("%w: %q", common.ErrUnknownCategory, value)
	}
	return code, nil
}

// Model is a logistic regression over the encoded feature vector.
type Model struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Cutoff    float64   `json:"cutoff"`
}

// Probability returns the predicted probability of fraud.
func (m *Model) Probability(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("%w: got %d features, model expects %d",
			common.ErrInvalidInput, len(features), len(m.Weights))
	}

	z := m.Intercept
	for i, f := range features {
		z += m.Weights[i] * f
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Predict returns 1 for fraud and 0 for legitimate.
func (m *Model) Predict(features []float64) (int, error) {
	p, err := m.Probability(features)
	if err != nil {
		return 0, err
	}
	if p > m.Cutoff {
		return 1, nil
	}
	return 0, nil
}

// Artifact is the on-disk form of a trained classifier.
type Artifact struct {
	Encoders map[string]*Encoder `json:"encoders"`
	Model    Model               `json:"model"`
}

// Classifier applies an Artifact to transactions. It is read-only after
// loading and safe for concurrent use.
type Classifier struct {
	artifact Artifact
}

// Load reads and validates an artifact file.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier artifact: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates an artifact.
func Parse(data []byte) (*Classifier, error) {
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("%w: malformed classifier artifact: %w", common.ErrInvalidConfig, err)
	}

	for _, field := range categoricalFields {
		enc, ok := artifact.Encoders[field]
		if !ok || enc == nil {
			return nil, fmt.Errorf("%w: classifier artifact missing %s encoder", common.ErrInvalidConfig, field)
		}
		if err := enc.build(); err != nil {
			return nil, err
		}
	}

	if len(artifact.Model.Weights) != FeatureCount {
		return nil, fmt.Errorf("%w: classifier has %d weights, want %d",
			common.ErrInvalidConfig, len(artifact.Model.Weights), FeatureCount)
	}
	if artifact.Model.Cutoff == 0 {
		artifact.Model.Cutoff = 0.5
	}
	if artifact.Model.Cutoff <= 0 || artifact.Model.Cutoff >= 1 {
		return nil, fmt.Errorf("%w: classifier cutoff %v outside (0,1)", common.ErrInvalidConfig, artifact.Model.Cutoff)
	}

	return &Classifier{artifact: artifact}, nil
}

// Features encodes txn into the model's input vector.
func (c *Classifier) Features(txn model.Transaction) ([]float64, error) {
	amount, _ := txn.Amount.Float64()
	features := make([]float64, 0, FeatureCount)
	features = append(features, amount, txn.BaseRiskIndicator)

	values := map[string]string{
		FieldMerchant:      txn.Merchant,
		FieldCategory:      txn.Category,
		FieldPaymentMethod: txn.PaymentMethod,
		FieldLocation:      txn.Location,
	}
	for _, field := range categoricalFields {
		code, err := c.artifact.Encoders[field].Encode(values[field])
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", field, err)
		}
		features = append(features, float64(code))
	}
	return features, nil
}

// Classify predicts whether txn is fraudulent.
func (c *Classifier) Classify(ctx context.Context, txn model.Transaction) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	features, err := c.Features(txn)
	if err != nil {
		return false, err
	}

	label, err := c.artifact.Model.Predict(features)
	if err != nil {
		return false, err
	}
	return label == 1, nil
}
