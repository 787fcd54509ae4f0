package injection

import (
	"encoding/json"
	"fmt"
	e "github.com/fansqz/inspector-bridge/error"
)

// Options 注入程序的选项，只能是扁平的字符串、数字、布尔值
type Options map[string]interface{}

// Validate 检查选项是否都可以序列化
func (o Options) Validate() error {
	for k, v := range o {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
		default:
			return fmt.Errorf("%w: %s has type %T", e.ErrOptionNotSerializable, k, v)
		}
	}
	return nil
}

// Encode 校验后序列化为 JSON 对象
func (o Options) Encode() (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode injection options: %w", err)
	}
	return string(data), nil
}
