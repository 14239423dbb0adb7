package machine

// 输送带传感器字段
const (
	FieldMotorTemp    = "motor_temp"
	FieldMotorCurrent = "motor_current"
	FieldSpeed        = "speed"
	FieldVibration    = "vibration"
	FieldBeltTension  = "belt_tension"
)

const (
	conveyorMotorTempBaseline    = 55.0
	conveyorMotorCurrentBaseline = 12.0
	conveyorSpeedBaseline        = 1.5
	conveyorVibrationBaseline    = 0.005
	conveyorBeltTensionBaseline  = 150.0
)

var conveyorPrecision = map[string]int{
	FieldMotorTemp:    2,
	FieldMotorCurrent: 2,
	FieldSpeed:        2,
	FieldVibration:    4,
	FieldBeltTension:  2,
}

// Conveyor 输送带，没有需要累计的计数器
type Conveyor struct {
	identity
	motorTempBaseline float64
	anomaly           AnomalyPolicy
}

func NewConveyor(id string, opts Options) *Conveyor {
	return &Conveyor{
		identity:          newIdentity(id, TypeConveyor, opts),
		motorTempBaseline: conveyorMotorTempBaseline,
		anomaly:           conveyorAnomaly,
	}
}

func (m *Conveyor) Generate() Sample {
	readings := map[string]float64{
		FieldMotorTemp:    m.normal(m.motorTempBaseline, 3),
		FieldMotorCurrent: m.normal(conveyorMotorCurrentBaseline, 1),
		FieldSpeed:        m.normal(conveyorSpeedBaseline, 0.1),
	}

	anomalous := m.anomaly.Apply(m.rng, readings)

	readings[FieldVibration] = m.normal(conveyorVibrationBaseline, 0.001)
	readings[FieldBeltTension] = m.normal(conveyorBeltTensionBaseline, 10)
	roundAll(readings, conveyorPrecision)

	return m.sample(readings, anomalous)
}
