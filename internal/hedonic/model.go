// Package hedonic trains a ridge-regression pricing model over sold
// market records and predicts log-price for arbitrary feature vectors.
//
// Regularization strength is chosen by 5-fold cross-validation over a
// fixed penalty grid, then the model is refit on the full training set
// with the winning alpha via the closed-form ridge solution.
package hedonic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"comppulse/internal/records"
)

// MinTrainingRecords is the smallest sold-record pool a model will train
// on. Below it, Train returns ErrInsufficientData and the caller is
// expected to fall back to heuristic adjustment.
const MinTrainingRecords = 10

const cvFolds = 5

// alphaGrid is the fixed ridge-penalty search grid.
var alphaGrid = []float64{0.01, 0.1, 1, 5, 10}

// ErrInsufficientData signals too few usable sold records to train.
// It is recoverable: the pipeline continues with heuristic adjustments.
var ErrInsufficientData = errors.New("insufficient sold records for hedonic training")

// Model is the trained hedonic pricing artifact. It is immutable once
// returned and lives only for the duration of one valuation call.
type Model struct {
	Coefficients map[string]float64 `json:"coefficients"`
	Intercept    float64            `json:"intercept"`
	Alpha        float64            `json:"alpha"`
	RMSELog      float64            `json:"rmse_log"`
	FeatureNames []string           `json:"feature_names"`

	// KnownSubdivisions lists the subdivisions with indicator columns so
	// prediction-time extraction emits the same dummies as training.
	KnownSubdivisions map[string]bool `json:"known_subdivisions"`
}

// PredictLog returns intercept + Σ coef·feature over the model's known
// feature names. Features absent from the vector contribute zero; this
// is deliberate, not an error.
func (m *Model) PredictLog(features FeatureVector) float64 {
	sum := m.Intercept
	for _, name := range m.FeatureNames {
		if v, ok := features[name]; ok {
			sum += m.Coefficients[name] * v
		}
	}
	return sum
}

// PredictPrice is PredictLog exponentiated back to dollars.
func (m *Model) PredictPrice(features FeatureVector) float64 {
	return math.Exp(m.PredictLog(features))
}

// MonthCoefficient returns the time-effect coefficient used by the price
// adjuster to isolate appreciation from feature differences.
func (m *Model) MonthCoefficient() float64 {
	return m.Coefficients[FeatMonth]
}

// Train fits a ridge model on the sold records in the pool.
//
// Records must be sold with positive price and sqft; fewer than
// MinTrainingRecords usable rows returns ErrInsufficientData. A singular
// or non-finite ridge solve is a hard training failure.
func Train(ctx context.Context, pool []*records.CleanRecord, logger *slog.Logger) (*Model, error) {
	if logger == nil {
		logger = slog.Default()
	}

	training := make([]*records.CleanRecord, 0, len(pool))
	for _, r := range pool {
		if r.Status == records.StatusSold && r.Price > 0 && r.Sqft > 0 {
			training = append(training, r)
		}
	}
	if len(training) < MinTrainingRecords {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(training), MinTrainingRecords)
	}

	eligible := eligibleSubdivisions(training)
	names := featureNameOrder(eligible)

	x, y := designMatrix(training, eligible, names)

	alpha, cvRMSE, err := crossValidateAlpha(x, y)
	if err != nil {
		return nil, fmt.Errorf("cross-validate alpha: %w", err)
	}

	coeffs, err := fitRidge(x, y, alpha)
	if err != nil {
		return nil, fmt.Errorf("ridge refit at alpha=%.2f: %w", alpha, err)
	}

	model := &Model{
		Coefficients:      make(map[string]float64, len(names)),
		Intercept:         coeffs[0],
		Alpha:             alpha,
		FeatureNames:      names,
		KnownSubdivisions: eligible,
	}
	for i, name := range names {
		model.Coefficients[name] = coeffs[i+1]
	}
	model.RMSELog = trainingRMSE(model, training)

	logger.InfoContext(ctx, "trained hedonic model",
		"training_records", len(training),
		"features", len(names),
		"alpha", alpha,
		"cv_rmse_log", cvRMSE,
		"rmse_log", model.RMSELog,
	)

	return model, nil
}

// designMatrix builds X (intercept column first) and y = ln(price).
func designMatrix(training []*records.CleanRecord, eligible map[string]bool, names []string) (*matrix, []float64) {
	x := newMatrix(len(training), len(names)+1)
	y := make([]float64, len(training))

	for i, r := range training {
		fv := ExtractFeatures(r, eligible, 0)
		x.set(i, 0, 1)
		for j, name := range names {
			x.set(i, j+1, fv[name])
		}
		y[i] = math.Log(r.Price)
	}
	return x, y
}

// crossValidateAlpha picks the alpha from the fixed grid minimizing
// held-out RMSE in log space across deterministic k folds. Alphas whose
// folds all fail to solve are skipped; if every alpha fails the whole
// training attempt fails.
func crossValidateAlpha(x *matrix, y []float64) (bestAlpha, bestRMSE float64, err error) {
	n := x.rows
	bestRMSE = math.Inf(1)

	for _, alpha := range alphaGrid {
		var sqErr float64
		var count int
		usable := true

		for fold := 0; fold < cvFolds; fold++ {
			trainX, trainY, testX, testY := splitFold(x, y, fold)
			if trainX.rows == 0 || len(testY) == 0 {
				continue
			}

			coeffs, solveErr := fitRidge(trainX, trainY, alpha)
			if solveErr != nil {
				usable = false
				break
			}

			for i := 0; i < testX.rows; i++ {
				pred := coeffs[0]
				for j := 1; j < testX.cols; j++ {
					pred += coeffs[j] * testX.at(i, j)
				}
				d := pred - testY[i]
				sqErr += d * d
				count++
			}
		}

		if !usable || count == 0 {
			continue
		}
		if rmse := math.Sqrt(sqErr / float64(count)); rmse < bestRMSE {
			bestRMSE = rmse
			bestAlpha = alpha
		}
	}

	if math.IsInf(bestRMSE, 1) {
		return 0, 0, fmt.Errorf("no alpha produced a solvable system over %d rows", n)
	}
	return bestAlpha, bestRMSE, nil
}

// splitFold assigns row i to fold i % cvFolds, keeping folds deterministic
// without shuffling.
func splitFold(x *matrix, y []float64, fold int) (trainX *matrix, trainY []float64, testX *matrix, testY []float64) {
	var trainRows, testRows []int
	for i := 0; i < x.rows; i++ {
		if i%cvFolds == fold {
			testRows = append(testRows, i)
		} else {
			trainRows = append(trainRows, i)
		}
	}

	trainX, trainY = subMatrix(x, y, trainRows)
	testX, testY = subMatrix(x, y, testRows)
	return trainX, trainY, testX, testY
}

func subMatrix(x *matrix, y []float64, rows []int) (*matrix, []float64) {
	sub := newMatrix(len(rows), x.cols)
	subY := make([]float64, len(rows))
	for i, r := range rows {
		copy(sub.data[i*sub.cols:(i+1)*sub.cols], x.data[r*x.cols:(r+1)*x.cols])
		subY[i] = y[r]
	}
	return sub, subY
}

// fitRidge solves (XᵀX + αI)⁻¹Xᵀy with the intercept unpenalized.
func fitRidge(x *matrix, y []float64, alpha float64) ([]float64, error) {
	a, b := normalEquations(x, y, alpha)
	return solveLinear(a, b)
}

func trainingRMSE(m *Model, training []*records.CleanRecord) float64 {
	var sqErr float64
	for _, r := range training {
		fv := ExtractFeatures(r, m.KnownSubdivisions, 0)
		d := m.PredictLog(fv) - math.Log(r.Price)
		sqErr += d * d
	}
	return math.Sqrt(sqErr / float64(len(training)))
}
