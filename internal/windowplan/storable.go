package windowplan

import "fmt"

// ToStorable serializes the plan to a plain key/value map.
func (p *Plan) ToStorable() map[string]interface{} {
	return map[string]interface{}{
		"training_months":     p.TrainingMonths,
		"testing_months":      p.TestingMonths,
		"step_months":         p.StepMonths,
		"optimization_metric": string(p.Metric),
		"min_trades":          p.MinTrades,
		"anchored":            p.Anchored,
	}
}

// FromStorable reconstructs a Plan from the map form, revalidating it. The
// map may come from decoded JSON, so numbers are accepted as float64 too.
func FromStorable(m map[string]interface{}) (*Plan, error) {
	cfg := Config{}

	var err error
	if cfg.TrainingMonths, err = intField(m, "training_months"); err != nil {
		return nil, err
	}
	if cfg.TestingMonths, err = intField(m, "testing_months"); err != nil {
		return nil, err
	}
	if cfg.StepMonths, err = intField(m, "step_months"); err != nil {
		return nil, err
	}
	if cfg.MinTrades, err = intField(m, "min_trades"); err != nil {
		return nil, err
	}

	metric, ok := m["optimization_metric"].(string)
	if !ok {
		return nil, fmt.Errorf("optimization_metric: missing or not a string")
	}
	cfg.Metric = metric

	if raw, present := m["anchored"]; present {
		anchored, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("anchored: not a boolean")
		}
		cfg.Anchored = anchored
	}

	return New(cfg)
}

func intField(m map[string]interface{}, key string) (int, error) {
	raw, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%s: missing", key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s: not a number", key)
	}
}
