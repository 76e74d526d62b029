package leaf

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig — невалидная конфигурация листа.
var ErrInvalidConfig = errors.New("invalid step config")

// Params читает конфигурацию шага вида kind. Отсутствующий ключ даёт
// значение по умолчанию; значение не того типа запоминается и
// возвращается из Err.
type Params struct {
	kind   string
	config map[string]any
	err    error
}

// NewParams создаёт Params над config.
func NewParams(kind string, config map[string]any) *Params {
	return &Params{kind: kind, config: config}
}

// Err возвращает первую ошибку типа, обёрнутую в ErrInvalidConfig.
func (p *Params) Err() error {
	return p.err
}

func (p *Params) mismatch(key, want string, got any) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s: %s: expected %s, got %T", ErrInvalidConfig, p.kind, key, want, got)
	}
}

// String возвращает строку по key или "".
func (p *Params) String(key string) string {
	v, ok := p.config[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.mismatch(key, "string", v)
	}
	return s
}

// Int возвращает целое по key или 0. Числа из JSON (float64) должны
// быть целыми.
func (p *Params) Int(key string) int {
	v, ok := p.config[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	}
	p.mismatch(key, "integer", v)
	return 0
}

// Bool возвращает булево по key или def.
func (p *Params) Bool(key string, def bool) bool {
	v, ok := p.config[key]
	if !ok || v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		p.mismatch(key, "bool", v)
		return def
	}
	return b
}

// StringMap возвращает объект со строковыми значениями по key или nil.
func (p *Params) StringMap(key string) map[string]string {
	v, ok := p.config[key]
	if !ok || v == nil {
		return nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, item := range m {
			s, ok := item.(string)
			if !ok {
				p.mismatch(key+"."+k, "string", item)
				continue
			}
			out[k] = s
		}
		return out
	}
	p.mismatch(key, "object", v)
	return nil
}
