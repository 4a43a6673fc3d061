package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/securitygate/securitygate/internal/telemetry"
)

// FallbackModelVersion identifies predictions produced by the heuristic path.
// Consumers use the version string to attribute trust to the score.
const FallbackModelVersion = "fallback_heuristic"

// Prediction is the complete output of one risk inference call.
type Prediction struct {
	RiskScore         float64            `json:"risk_score"`
	RiskLabel         string             `json:"risk_label"`
	RiskPercentage    float64            `json:"risk_percentage"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	ModelVersion      string             `json:"model_version"`
	UsingFallback     bool               `json:"using_fallback"`
}

// modelArtifact is the serialized trained-model format: a logistic scorer
// with per-feature weights plus the global feature importances exported at
// training time. The decision threshold is stored with the model, so the
// binary label and the raw probability are independent outputs and can
// disagree around the 0.5 boundary; that mirrors the training contract and
// is deliberately not reconciled here.
type modelArtifact struct {
	Version            string    `json:"version"`
	Weights            []float64 `json:"weights"`
	Bias               float64   `json:"bias"`
	Threshold          float64   `json:"threshold"`
	FeatureImportances []float64 `json:"feature_importances"`
}

func (m *modelArtifact) validate() error {
	if len(m.Weights) != NumFeatures {
		return fmt.Errorf("model has %d weights, want %d", len(m.Weights), NumFeatures)
	}
	if len(m.FeatureImportances) != NumFeatures {
		return fmt.Errorf("model has %d importances, want %d", len(m.FeatureImportances), NumFeatures)
	}
	return nil
}

// Predictor scores feature vectors with a trained model loaded lazily from
// disk, or with the closed-form heuristic when no model is available. The
// artifact is loaded at most once per Predictor lifetime; a missing or
// unreadable artifact permanently switches the predictor to fallback mode.
type Predictor struct {
	path string

	mu     sync.Mutex
	loaded bool
	model  *modelArtifact
}

// NewPredictor returns a predictor that will load the artifact at path on
// first use. An empty path means fallback mode from the start.
func NewPredictor(path string) *Predictor {
	return &Predictor{path: path}
}

// loadModel performs the guarded one-time load. Concurrent first callers
// serialize on the mutex: exactly one attempt runs and everyone observes the
// same outcome.
func (p *Predictor) loadModel() *modelArtifact {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return p.model
	}
	p.loaded = true

	if p.path == "" {
		log.Warn().Msg("No ML model path configured, using fallback heuristic")
		return nil
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		log.Warn().Err(err).Str("path", p.path).Msg("ML model not found, using fallback heuristic")
		return nil
	}

	var artifact modelArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		log.Error().Err(err).Str("path", p.path).Msg("Failed to parse ML model, using fallback heuristic")
		return nil
	}
	if err := artifact.validate(); err != nil {
		log.Error().Err(err).Str("path", p.path).Msg("ML model failed validation, using fallback heuristic")
		return nil
	}
	if artifact.Version == "" {
		artifact.Version = "trained_model"
	}
	if artifact.Threshold == 0 {
		artifact.Threshold = 0.5
	}

	p.model = &artifact
	log.Info().Str("path", p.path).Str("version", artifact.Version).Msg("ML model loaded")
	return p.model
}

// ModelLoaded reports whether a trained model is active. It triggers the
// one-time load if it has not happened yet.
func (p *Predictor) ModelLoaded() bool {
	return p.loadModel() != nil
}

// Reset discards the cached load outcome so the next call reloads from disk.
// Exists for test isolation.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
	p.model = nil
}

// PredictRisk scores one feature vector. It never returns an error: any
// failure degrades to the deterministic heuristic for that call.
func (p *Predictor) PredictRisk(v FeatureVector) Prediction {
	model := p.loadModel()
	if model == nil {
		return p.fallback(v)
	}

	pred, ok := p.infer(model, v)
	if !ok {
		// Per-call degradation only; the model stays active for the next
		// caller.
		return p.fallback(v)
	}
	telemetry.PredictionsTotal.WithLabelValues("model").Inc()
	return pred
}

func (p *Predictor) infer(model *modelArtifact, v FeatureVector) (Prediction, bool) {
	x := v.Values()

	z := model.Bias
	for i, w := range model.Weights {
		z += w * x[i]
	}
	proba := sigmoid(z)
	if math.IsNaN(proba) || math.IsInf(proba, 0) {
		log.Error().Str("version", model.Version).Msg("Model inference produced a non-finite probability")
		return Prediction{}, false
	}

	// Binary prediction uses the model's stored decision threshold, not the
	// 0.5 probability midpoint; the label follows the binary prediction.
	label := "low"
	if proba >= model.Threshold {
		label = "high"
	}

	// Per-call contribution: |value| * global importance, normalized to sum
	// to 1. A zero denominator (all-zero vector) substitutes 1.0.
	raw := make([]float64, NumFeatures)
	total := 0.0
	for i := range raw {
		raw[i] = math.Abs(x[i]) * model.FeatureImportances[i]
		total += raw[i]
	}
	if total == 0 {
		total = 1.0
	}
	importance := make(map[string]float64, NumFeatures)
	for i, name := range FeatureNames {
		importance[name] = roundTo(raw[i]/total, 4)
	}

	return Prediction{
		RiskScore:         roundTo(proba, 4),
		RiskLabel:         label,
		RiskPercentage:    roundTo(proba*100, 1),
		FeatureImportance: importance,
		ModelVersion:      model.Version,
		UsingFallback:     false,
	}, true
}

// fallback is the deterministic closed-form heuristic used whenever no model
// is available or inference fails. The empty importance map signals "no
// attribution available", distinct from a model assigning near-zero weights.
func (p *Predictor) fallback(v FeatureVector) Prediction {
	score := 0.0
	score += math.Min(v.NumSeverity*0.15, 0.45)
	score += math.Min(v.FilesChanged*0.005, 0.15)
	score += math.Max(0, (1-v.AuthorReputation)*0.20)
	score += v.HistoricalVulnRate * 0.15
	if v.HasTestChanges == 0 && v.FilesChanged > 5 {
		score += 0.05
	}
	score = clip01(score)

	label := "low"
	if score >= 0.5 {
		label = "high"
	}

	telemetry.PredictionsTotal.WithLabelValues("fallback").Inc()
	return Prediction{
		RiskScore:         roundTo(score, 4),
		RiskLabel:         label,
		RiskPercentage:    roundTo(score*100, 1),
		FeatureImportance: map[string]float64{},
		ModelVersion:      FallbackModelVersion,
		UsingFallback:     true,
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
