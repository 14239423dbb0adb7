package machine

// CNC 传感器字段
const (
	FieldSpindleTemp  = "spindle_temp"
	FieldVibrationX   = "vibration_x"
	FieldVibrationY   = "vibration_y"
	FieldSpindleSpeed = "spindle_speed"
	FieldFeedRate     = "feed_rate"
	FieldToolWear     = "tool_wear"
	FieldTorque       = "torque"
)

const (
	cncSpindleTempBaseline = 70.0
	cncVibrationBaseline   = 0.01
	cncTorqueBaseline      = 150.0
	cncSpindleSpeed        = 2500
	cncFeedRate            = 300
	// 每次采样刀具磨损的增量；不模拟换刀
	cncToolWearIncrement = 0.001
)

var cncPrecision = map[string]int{
	FieldSpindleTemp: 2,
	FieldVibrationX:  4,
	FieldVibrationY:  4,
	FieldToolWear:    3,
	FieldTorque:      2,
}

// CNC 旋转刀具类设备
type CNC struct {
	identity
	spindleTempBaseline float64
	vibrationBaseline   float64
	// toolWearSteps 以整数步计数避免浮点累加误差，tool_wear = steps × 0.001
	toolWearSteps uint64
	anomaly       AnomalyPolicy
}

func NewCNC(id string, opts Options) *CNC {
	return &CNC{
		identity:            newIdentity(id, TypeCNC, opts),
		spindleTempBaseline: cncSpindleTempBaseline,
		vibrationBaseline:   cncVibrationBaseline,
		anomaly:             cncAnomaly,
	}
}

// ToolWear 当前累计磨损量
func (m *CNC) ToolWear() float64 {
	return float64(m.toolWearSteps) * cncToolWearIncrement
}

func (m *CNC) Generate() Sample {
	readings := map[string]float64{
		FieldSpindleTemp: m.normal(m.spindleTempBaseline, 5),
		FieldVibrationX:  m.normal(m.vibrationBaseline, 0.002),
		FieldVibrationY:  m.normal(m.vibrationBaseline, 0.002),
	}

	m.toolWearSteps++

	anomalous := m.anomaly.Apply(m.rng, readings)

	readings[FieldSpindleSpeed] = cncSpindleSpeed
	readings[FieldFeedRate] = cncFeedRate
	readings[FieldToolWear] = m.ToolWear()
	readings[FieldTorque] = m.normal(cncTorqueBaseline, 10)
	roundAll(readings, cncPrecision)

	return m.sample(readings, anomalous)
}
