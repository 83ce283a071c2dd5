package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode 是引擎的运行模式。用带标签的枚举而不是裸字符串，
// 模式切换时的上下文再水合只认这个类型。
type Mode int

const (
	ModeSimulation Mode = iota + 1
	ModeTraining
	ModeLive
)

func (m Mode) String() string {
	switch m {
	case ModeSimulation:
		return "simulation"
	case ModeTraining:
		return "training"
	case ModeLive:
		return "live"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid 报告 m 是否是已定义的模式。
func (m Mode) Valid() bool {
	return m >= ModeSimulation && m <= ModeLive
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simulation", "sim":
		return ModeSimulation, nil
	case "training", "train":
		return ModeTraining, nil
	case "live":
		return ModeLive, nil
	default:
		return 0, fmt.Errorf("未知模式: %q", s)
	}
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
