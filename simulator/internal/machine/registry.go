package machine

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidMachineCount = errors.New("machine count must be positive")

// catalog 固定的规范顺序；请求数量超过种类数时截断，不重复创建同类设备
var catalog = []struct {
	id    string
	build func(id string, opts Options) Machine
}{
	{"CNC_001", func(id string, o Options) Machine { return NewCNC(id, o) }},
	{"INJ_001", func(id string, o Options) Machine { return NewInjectionMolding(id, o) }},
	{"CONV_001", func(id string, o Options) Machine { return NewConveyor(id, o) }},
}

// Available 支持的设备种类数
func Available() int {
	return len(catalog)
}

// Build 按规范顺序创建 min(count, Available()) 台设备
// 所有设备共用同一基础种子，以序号区分随机序列；Seed 为 0 时以当前时间为基数
func Build(count int, opts Options) ([]Machine, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMachineCount, count)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	n := min(count, len(catalog))
	machines := make([]Machine, 0, n)
	for i := 0; i < n; i++ {
		o := opts
		o.Seed = seed
		o.stream = uint64(i)
		machines = append(machines, catalog[i].build(catalog[i].id, o))
	}
	return machines, nil
}
