package main

import (
	"fmt"

	"github.com/gocrud/ioc/di"
)

// ===== 接口定义 =====

type Logger interface {
	Log(msg string)
}

type RequestContext interface {
	GetRequestID() string
	SetValue(key string, value any)
	GetValue(key string) any
}

type UserRepository interface {
	GetUserByID(id int) string
}

type UserService interface {
	GetUserProfile(id int) string
}

// ===== 实现 =====

type ConsoleLogger struct {
	instanceID int
}

var loggerInstanceCounter int

func NewConsoleLogger() *ConsoleLogger {
	loggerInstanceCounter++
	return &ConsoleLogger{instanceID: loggerInstanceCounter}
}

func (l *ConsoleLogger) Log(msg string) {
	fmt.Printf("[Logger #%d] %s\n", l.instanceID, msg)
}

type HttpRequestContext struct {
	requestID string
	data      map[string]any
	logger    Logger
}

var requestContextCounter int

func NewRequestContext(logger Logger) *HttpRequestContext {
	requestContextCounter++
	return &HttpRequestContext{
		requestID: fmt.Sprintf("REQ-%d", requestContextCounter),
		data:      make(map[string]any),
		logger:    logger,
	}
}

func (ctx *HttpRequestContext) GetRequestID() string {
	return ctx.requestID
}

func (ctx *HttpRequestContext) SetValue(key string, value any) {
	ctx.data[key] = value
	ctx.logger.Log(fmt.Sprintf("[%s] Set %s", ctx.requestID, key))
}

func (ctx *HttpRequestContext) GetValue(key string) any {
	return ctx.data[key]
}

// Close 请求容器销毁时调用
func (ctx *HttpRequestContext) Close() {
	ctx.logger.Log(fmt.Sprintf("[%s] Disposed", ctx.requestID))
}

type UserRepo struct {
	Ctx    RequestContext `di:""`
	Logger Logger         `di:""`
}

func (r *UserRepo) GetUserByID(id int) string {
	r.Logger.Log(fmt.Sprintf("[%s] Querying user %d from database", r.Ctx.GetRequestID(), id))
	return fmt.Sprintf("User-%d", id)
}

type UserSvc struct {
	Repo   UserRepository `di:""`
	Ctx    RequestContext `di:""`
	Logger Logger         `di:""`
}

func (s *UserSvc) GetUserProfile(id int) string {
	s.Logger.Log(fmt.Sprintf("[%s] Getting user profile for %d", s.Ctx.GetRequestID(), id))
	userName := s.Repo.GetUserByID(id)
	s.Ctx.SetValue("lastUser", userName)
	return fmt.Sprintf("Profile of %s", userName)
}

// ===== 作用域 =====

// appScope 应用作用域，可见 main 包中未指定模块的提供者
type appScope struct{}

// requestScope 请求作用域，只可见模块 "request" 中的提供者，其余依赖来自父容器
type requestScope struct{}

const requestModule = "request"

// ===== 主程序 =====

func main() {
	fmt.Println("=== DI Container Scope Demo ===")
	fmt.Println()

	r := di.NewRegistry()
	di.DeclareScope[*appScope](r)
	di.DeclareModuleScope[*requestScope](r, requestModule)

	// 1. Logger 属于应用作用域（全局共享）
	di.Provide(r, NewConsoleLogger)

	// 2. RequestContext 与 UserRepository 属于请求作用域（每个请求一个）
	di.Provide(r, NewRequestContext, di.WithModule(requestModule))
	di.Register[*UserRepo](r, di.WithModule(requestModule))

	// 3. UserService 每次获取都新建
	di.Register[*UserSvc](r, di.WithModule(requestModule), di.WithTransient(), di.WithLazy())

	r.Annotate(di.TypeOf[*HttpRequestContext]()).Method("Close", di.OnDestroy{})

	root, err := di.New[*appScope](r)
	if err != nil {
		panic(err)
	}
	defer root.Destroy()

	fmt.Println("Container built successfully!")
	fmt.Println()

	// 模拟处理 HTTP 请求的函数
	handleRequest := func(requestNum int) {
		fmt.Printf("\n--- Handling Request #%d ---\n", requestNum)

		// 为每个请求创建子容器
		scope, err := di.New[*requestScope](r, di.WithParent(root))
		if err != nil {
			panic(err)
		}
		defer scope.Destroy()

		// 获取两次 UserService（Transient，应该是不同实例）
		userService1 := di.MustResolve[UserService](scope)
		userService2 := di.MustResolve[UserService](scope)
		fmt.Printf("Same service instance: %v\n", userService1 == userService2)

		profile1 := userService1.GetUserProfile(100 + requestNum)
		fmt.Printf("Result: %s\n", profile1)

		profile2 := userService2.GetUserProfile(200 + requestNum)
		fmt.Printf("Result: %s\n", profile2)

		// 验证：同一作用域内，RequestContext 应该是同一个
		requestContext := di.MustResolve[RequestContext](scope)
		fmt.Printf("Request ID: %s\n", requestContext.GetRequestID())
		fmt.Printf("Last User: %v\n", requestContext.GetValue("lastUser"))
	}

	// 处理3个请求
	handleRequest(1)
	handleRequest(2)
	handleRequest(3)

	fmt.Println("\n=== Summary ===")
	fmt.Printf("Logger instances created: %d (Expected: 1, because it's shared by the root container)\n", loggerInstanceCounter)
	fmt.Printf("RequestContext instances created: %d (Expected: 3, one per request container)\n", requestContextCounter)
}
