package machine

// 注塑机传感器字段
const (
	FieldBarrelTemp        = "barrel_temp"
	FieldInjectionPressure = "injection_pressure"
	FieldCoolingTime       = "cooling_time"
	FieldCycleTime         = "cycle_time"
	FieldCycleCount        = "cycle_count"
	FieldHydraulicPressure = "hydraulic_pressure"
)

const (
	moldingBarrelTempBaseline        = 220.0
	moldingInjectionPressureBaseline = 100.0
	moldingCoolingTimeBaseline       = 15.0
	moldingCycleTimeBaseline         = 45.0
	moldingHydraulicPressureBaseline = 80.0
)

var moldingPrecision = map[string]int{
	FieldBarrelTemp:        2,
	FieldInjectionPressure: 2,
	FieldCoolingTime:       2,
	FieldCycleTime:         2,
	FieldHydraulicPressure: 2,
}

// InjectionMolding 注塑机，每次采样视为完成一个成型周期
type InjectionMolding struct {
	identity
	barrelTempBaseline float64
	// cycleCount 作为 JSON number 输出，2^53 以内精确
	cycleCount uint64
	anomaly    AnomalyPolicy
}

func NewInjectionMolding(id string, opts Options) *InjectionMolding {
	return &InjectionMolding{
		identity:           newIdentity(id, TypeInjectionMolding, opts),
		barrelTempBaseline: moldingBarrelTempBaseline,
		anomaly:            moldingAnomaly,
	}
}

// CycleCount 已完成的周期数
func (m *InjectionMolding) CycleCount() uint64 {
	return m.cycleCount
}

func (m *InjectionMolding) Generate() Sample {
	readings := map[string]float64{
		FieldBarrelTemp:        m.normal(m.barrelTempBaseline, 3),
		FieldInjectionPressure: m.normal(moldingInjectionPressureBaseline, 5),
		FieldCoolingTime:       m.normal(moldingCoolingTimeBaseline, 1),
	}

	m.cycleCount++

	anomalous := m.anomaly.Apply(m.rng, readings)

	readings[FieldCycleTime] = m.normal(moldingCycleTimeBaseline, 2)
	readings[FieldCycleCount] = float64(m.cycleCount)
	readings[FieldHydraulicPressure] = m.normal(moldingHydraulicPressureBaseline, 5)
	roundAll(readings, moldingPrecision)

	return m.sample(readings, anomalous)
}
