package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Bounds 表示单个超参的连续取值范围。
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ParamBounds 映射超参名 -> 取值范围，优化器在该范围内采样。
type ParamBounds map[string]Bounds

// Clone 返回深拷贝，调用方可以安全修改。
func (b ParamBounds) Clone() ParamBounds {
	out := make(ParamBounds, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Names 返回排序后的超参名，保证遍历顺序稳定。
func (b ParamBounds) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registration 将策略名绑定到工厂和默认搜索范围。
type Registration struct {
	Name          string
	Factory       Factory
	DefaultBounds ParamBounds
}

// Registry 按名字管理可用策略。
type Registry struct {
	entries map[string]Registration
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

func (r *Registry) Register(reg Registration) error {
	name := strings.ToLower(strings.TrimSpace(reg.Name))
	if name == "" {
		return fmt.Errorf("strategy: 注册名不能为空")
	}
	if reg.Factory == nil {
		return fmt.Errorf("strategy: %s 缺少工厂函数", name)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("strategy: %s 重复注册", name)
	}
	reg.Name = name
	r.entries[name] = reg
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.entries[strings.ToLower(strings.TrimSpace(name))]
	return reg, ok
}

// Names 按注册顺序返回全部策略名。
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// New 按名字和超参构造策略实例。
func (r *Registry) New(name string, params Params) (Strategy, error) {
	reg, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("strategy: 未知策略 %q", name)
	}
	return reg.Factory(params)
}

// DefaultRegistry 返回内置五个策略及其默认搜索范围。
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := []Registration{
		{
			Name:    "rsi",
			Factory: NewRSI,
			DefaultBounds: ParamBounds{
				"rsi_period":     {Min: 10, Max: 20},
				"buy_threshold":  {Min: 20, Max: 35},
				"sell_threshold": {Min: 65, Max: 80},
			},
		},
		{
			Name:    "sma",
			Factory: NewSMA,
			DefaultBounds: ParamBounds{
				"short_window": {Min: 3, Max: 10},
				"long_window":  {Min: 15, Max: 30},
			},
		},
		{
			Name:    "bollinger",
			Factory: NewBollinger,
			DefaultBounds: ParamBounds{
				"window":  {Min: 15, Max: 25},
				"num_std": {Min: 1.5, Max: 2.5},
			},
		},
		{
			Name:    "macd",
			Factory: NewMACD,
			DefaultBounds: ParamBounds{
				"fast_period":   {Min: 8, Max: 15},
				"slow_period":   {Min: 20, Max: 30},
				"signal_period": {Min: 7, Max: 12},
			},
		},
		{
			Name:    "stochastic",
			Factory: NewStochastic,
			DefaultBounds: ParamBounds{
				"k_period":       {Min: 10, Max: 18},
				"d_period":       {Min: 2, Max: 5},
				"buy_threshold":  {Min: 15, Max: 25},
				"sell_threshold": {Min: 75, Max: 85},
			},
		},
	}
	for _, reg := range builtins {
		if err := r.Register(reg); err != nil {
			panic(err)
		}
	}
	return r
}

// boundsSchema 约束配置文件里的 bounds 覆盖段：
// 策略名 -> 超参名 -> [min, max] 两元素数字数组。
const boundsSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "minProperties": 1,
    "additionalProperties": {
      "type": "array",
      "items": {"type": "number"},
      "minItems": 2,
      "maxItems": 2
    }
  }
}`

var compiledBoundsSchema = jsonschema.MustCompileString("bounds.json", boundsSchema)

// ParseBoundsOverrides 校验并解析配置中的搜索范围覆盖，
// JSON 结构不合法或 min > max 时报错。
func ParseBoundsOverrides(raw []byte) (map[string]ParamBounds, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("strategy: bounds 配置不是合法 JSON: %w", err)
	}
	if err := compiledBoundsSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("strategy: bounds 配置校验失败: %w", err)
	}

	var decoded map[string]map[string][2]float64
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	out := make(map[string]ParamBounds, len(decoded))
	for strat, params := range decoded {
		bounds := make(ParamBounds, len(params))
		for name, pair := range params {
			if pair[0] > pair[1] {
				return nil, fmt.Errorf("strategy: %s.%s 范围非法: min=%v > max=%v", strat, name, pair[0], pair[1])
			}
			bounds[name] = Bounds{Min: pair[0], Max: pair[1]}
		}
		out[strings.ToLower(strat)] = bounds
	}
	return out, nil
}
