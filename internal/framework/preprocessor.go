package framework

import (
	"context"
	"errors"
	"fmt"
)

// ProcessorFunc 处理函数类型
type ProcessorFunc func(ctx context.Context) error

// ErrStop 提前结束函数链且不视为失败（如缓存命中）
var ErrStop = errors.New("stop processing")

// Step 带名字的处理步骤
type Step struct {
	Name string
	Func ProcessorFunc
}

// PreProcessor 函数链处理器
type PreProcessor struct {
	steps   []Step
	onEnter func(name string)
}

// NewPreProcessor 创建函数链处理器
func NewPreProcessor(steps []Step) *PreProcessor {
	return &PreProcessor{steps: steps}
}

// OnEnter 注册进入每一步前的回调，用于记录状态轨迹
func (p *PreProcessor) OnEnter(fn func(name string)) *PreProcessor {
	p.onEnter = fn
	return p
}

// Run 执行函数链
// 任一函数返回 error 则立即停止；返回 ErrStop 时正常结束
func (p *PreProcessor) Run(ctx context.Context) error {
	for _, step := range p.steps {
		if p.onEnter != nil {
			p.onEnter(step.Name)
		}
		if err := step.Func(ctx); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return fmt.Errorf("%s failed: %w", step.Name, err)
		}
	}
	return nil
}
