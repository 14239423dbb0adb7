package machine

import "math/rand/v2"

// PerturbMode 异常偏移的叠加方式
type PerturbMode int

const (
	// Additive 温度、压力、电流类字段：读数 + 偏移
	Additive PerturbMode = iota
	// Multiplicative 振动类字段：读数 × 倍数
	Multiplicative
)

// Perturbation 单个字段的异常规则，偏移量在 [Min, Max] 内均匀分布
type Perturbation struct {
	Field string
	Min   float64
	Max   float64
	Mode  PerturbMode
}

// AnomalyPolicy 每次采样做一次独立的伯努利试验，命中时对指定字段施加偏移
// 没有故障状态：下一次采样重新回到基线噪声
type AnomalyPolicy struct {
	Probability   float64
	Perturbations []Perturbation
}

// Triggered 本次采样是否触发异常
func (p AnomalyPolicy) Triggered(rng *rand.Rand) bool {
	return rng.Float64() < p.Probability
}

// Apply 触发时修改 readings 并返回 true
func (p AnomalyPolicy) Apply(rng *rand.Rand, readings map[string]float64) bool {
	if !p.Triggered(rng) {
		return false
	}
	for _, pt := range p.Perturbations {
		offset := uniform(rng, pt.Min, pt.Max)
		switch pt.Mode {
		case Multiplicative:
			readings[pt.Field] *= offset
		default:
			readings[pt.Field] += offset
		}
	}
	return true
}

// 主轴温度骤升 + 振动激增
var cncAnomaly = AnomalyPolicy{
	Probability: 0.05,
	Perturbations: []Perturbation{
		{Field: FieldSpindleTemp, Min: 20, Max: 40, Mode: Additive},
		{Field: FieldVibrationX, Min: 3, Max: 5, Mode: Multiplicative},
		{Field: FieldVibrationY, Min: 3, Max: 5, Mode: Multiplicative},
	},
}

// 注射压力尖峰
var moldingAnomaly = AnomalyPolicy{
	Probability: 0.03,
	Perturbations: []Perturbation{
		{Field: FieldInjectionPressure, Min: 20, Max: 30, Mode: Additive},
	},
}

// 电机过载：电流和温度同时升高
var conveyorAnomaly = AnomalyPolicy{
	Probability: 0.02,
	Perturbations: []Perturbation{
		{Field: FieldMotorCurrent, Min: 5, Max: 10, Mode: Additive},
		{Field: FieldMotorTemp, Min: 10, Max: 20, Mode: Additive},
	},
}
