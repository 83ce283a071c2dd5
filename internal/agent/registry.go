package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"virtex/internal/logger"
)

// Preset 是策略配置文件里的单个预设。
type Preset struct {
	ID                 string             `mapstructure:"id" yaml:"id"`
	Name               string             `mapstructure:"name" yaml:"name"`
	Description        string             `mapstructure:"description" yaml:"description"`
	StopLossMultiplier float64            `mapstructure:"stop_loss_multiplier" yaml:"stop_loss_multiplier"`
	TargetVol          float64            `mapstructure:"target_vol" yaml:"target_vol"`
	Weights            map[string]float64 `mapstructure:"weights" yaml:"weights"`
	Schema             map[string]any     `mapstructure:"schema" yaml:"schema"`

	strategyID     StrategyID
	schemaCompiled *jsonschema.Schema
}

// fileConfig 映射 strategies 文件的顶层结构。
type fileConfig struct {
	Strategies map[string]Preset `mapstructure:"strategies" yaml:"strategies"`
}

// Snapshot 是某一时刻的预设全集。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[StrategyID]Preset
}

// ChangeListener 在热重载后被异步回调。
type ChangeListener func(Snapshot)

// Registry 从 YAML 加载策略预设并热监听文件变更。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取预设文件并开始监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry 需要配置路径")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取策略配置失败: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("策略配置重载失败: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前预设集的拷贝。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Preset 按 StrategyID 查预设。
func (r *Registry) Preset(id StrategyID) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Presets[id]
	return p, ok
}

// Resolve 把预设与调用方参数合成 ActiveStrategy；参数先过 schema 校验。
func (r *Registry) Resolve(id StrategyID, params map[string]any) (ActiveStrategy, error) {
	p, ok := r.Preset(id)
	if !ok {
		return ActiveStrategy{}, fmt.Errorf("未注册的策略: %s", id)
	}
	if err := p.Validate(params); err != nil {
		return ActiveStrategy{}, fmt.Errorf("策略参数校验失败: %w", err)
	}
	s := ActiveStrategy{
		ID:                 id,
		Name:               p.Name,
		Weights:            make(map[string]float64, len(p.Weights)),
		StopLossMultiplier: p.StopLossMultiplier,
		TargetVol:          p.TargetVol,
	}
	for k, w := range p.Weights {
		s.Weights[k] = w
	}
	if v, ok := numericParam(params, "stop_loss_multiplier"); ok {
		s.StopLossMultiplier = v
	}
	if v, ok := numericParam(params, "target_vol"); ok {
		s.TargetVol = v
	}
	return s, nil
}

// Subscribe 注册重载回调。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readStrategyFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[StrategyID]Preset)
	for name, p := range cfg.Strategies {
		norm, err := normalizePreset(name, p)
		if err != nil {
			logger.Errorf("策略预设 %s 无效，跳过: %v", name, err)
			continue
		}
		presets[norm.strategyID] = norm
	}
	if len(presets) == 0 {
		return fmt.Errorf("策略配置 %s 没有任何有效预设", filepath.Base(r.path))
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
	logger.Infof("策略注册表加载 %d 个预设 (%s)", len(presets), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("策略重载回调 panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func normalizePreset(name string, p Preset) (Preset, error) {
	raw := strings.TrimSpace(p.ID)
	if raw == "" {
		raw = strings.TrimSpace(name)
	}
	id, err := ParseStrategyID(raw)
	if err != nil {
		return Preset{}, err
	}
	p.ID = id.String()
	p.strategyID = id
	if p.Name == "" {
		p.Name = strings.ToUpper(id.String()[:1]) + id.String()[1:]
	}
	if len(p.Schema) > 0 {
		compiled, err := compileSchema(p.Schema)
		if err != nil {
			return Preset{}, fmt.Errorf("schema 编译失败: %w", err)
		}
		p.schemaCompiled = compiled
	}
	return p, nil
}

// Validate 用预设声明的 JSON Schema 校验调用方参数。
func (p Preset) Validate(params map[string]any) error {
	if p.schemaCompiled == nil || params == nil {
		return nil
	}
	return p.schemaCompiled.Validate(map[string]any(params))
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Presets:  make(map[StrategyID]Preset, len(src.Presets)),
	}
	for id, p := range src.Presets {
		dst.Presets[id] = p
	}
	return dst
}

func compileSchema(data map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func readStrategyFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("读取策略配置失败: %w", err)
	}
	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fileConfig{}, fmt.Errorf("解析策略配置失败: %w", err)
	}
	return cfg, nil
}

func numericParam(params map[string]any, key string) (float64, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
