// Package machine 工厂设备的传感器模型：CNC（旋转刀具）、注塑机、输送带
//
// 每台设备持有自己的随机源和时钟，Generate 之间互不影响，也不共享可变状态。
package machine

import (
	"math"
	"math/rand/v2"
	"time"
)

// Type 设备类型（同时也是 MQTT 主题和消息里的 machine_type）
type Type string

const (
	TypeCNC              Type = "CNC"
	TypeInjectionMolding Type = "Injection Molding"
	TypeConveyor         Type = "Conveyor"
)

// Status 设备运行状态；目前只有 running，字段保留在消息格式里
type Status string

const StatusRunning Status = "running"

// Sample 单次采样，生成后不再修改
type Sample struct {
	Timestamp   time.Time          `json:"timestamp"`
	MachineID   string             `json:"machine_id"`
	MachineType Type               `json:"machine_type"`
	Status      Status             `json:"status"`
	Sensors     map[string]float64 `json:"sensors"`

	// Anomalous 本次采样是否注入了异常，不进入消息体
	Anomalous bool `json:"-"`
}

// Machine 所有设备模型的共同能力
type Machine interface {
	ID() string
	Type() Type
	Status() Status
	Generate() Sample
}

// Options 构造参数
type Options struct {
	// Seed 随机种子；0 表示使用当前时间
	Seed int64
	// Clock 默认 time.Now
	Clock func() time.Time

	// stream 同一种子下区分设备的随机序列，由 Build 按序号设置
	stream uint64
}

// Topic 设备的发布主题：factory/<machine_type>/<machine_id>/sensors
func Topic(m Machine) string {
	return "factory/" + string(m.Type()) + "/" + m.ID() + "/sensors"
}

// identity 设备的不变部分 + 随机源 + 上一次时间戳
type identity struct {
	id    string
	typ   Type
	rng   *rand.Rand
	clock func() time.Time
	last  time.Time
}

func newIdentity(id string, typ Type, opts Options) identity {
	seed := uint64(opts.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return identity{
		id:    id,
		typ:   typ,
		rng:   rand.New(rand.NewPCG(seed, (seed^0x9e3779b97f4a7c15)+opts.stream)),
		clock: clock,
	}
}

func (i *identity) ID() string     { return i.id }
func (i *identity) Type() Type     { return i.typ }
func (i *identity) Status() Status { return StatusRunning }

// stamp 返回 UTC 时间戳；墙上时钟回拨时沿用上一次的值，保证同一设备的时间戳不减
func (i *identity) stamp() time.Time {
	ts := i.clock().UTC()
	if ts.Before(i.last) {
		ts = i.last
	}
	i.last = ts
	return ts
}

func (i *identity) sample(sensors map[string]float64, anomalous bool) Sample {
	return Sample{
		Timestamp:   i.stamp(),
		MachineID:   i.id,
		MachineType: i.typ,
		Status:      StatusRunning,
		Sensors:     sensors,
		Anomalous:   anomalous,
	}
}

func (i *identity) normal(mean, stddev float64) float64 {
	return mean + i.rng.NormFloat64()*stddev
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}

// roundAll 按字段精度取整，未列出的字段（常量、计数器）保持原值
func roundAll(readings map[string]float64, precision map[string]int) {
	for field, digits := range precision {
		if v, ok := readings[field]; ok {
			readings[field] = round(v, digits)
		}
	}
}
