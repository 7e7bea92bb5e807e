package job

import (
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
)

// Module 任务模块的作用域，应用作用域导入 *Module 后启用调度
type Module struct{}

// Install 在注册表中声明 Module 并注册 Scheduler。
// 每个容器拥有自己的 Scheduler；应在注册带 Scheduled 标记的组件之前调用，
// 使调度器先于它们创建。
func Install(r *di.Registry, opts ...Option) {
	module := meta.ModulePath(di.TypeOf[*Module]())
	di.DeclareScope[*Module](r)

	logger := r.Logger().WithCategory("job")
	di.Provide(r, func() *Scheduler { return NewScheduler(logger, opts...) }, di.WithModule(module))

	r.Annotate(di.TypeOf[*Scheduler]()).
		Method("Start", di.OnRunning{}).
		Method("Stop", di.OnDestroy{})
}
