package main

import (
	"fmt"

	"github.com/gocrud/ioc/di"
)

// 定义接口
type Logger interface {
	Log(msg string)
}

type Database interface {
	Connect() error
}

// 实现
type ConsoleLogger struct {
	Prefix string
}

func (c *ConsoleLogger) Log(msg string) {
	fmt.Println(c.Prefix + ": " + msg)
}

type MySQLDatabase struct {
	Host string
	Port int
}

func NewMySQLDatabase(logger Logger) *MySQLDatabase {
	logger.Log("creating database")
	return &MySQLDatabase{Host: "localhost", Port: 3306}
}

func (m *MySQLDatabase) Connect() error {
	fmt.Println("Connecting to MySQL at", m.Host, ":", m.Port)
	return nil
}

// 服务
type UserService struct {
	Logger Logger   `di:""`
	DB     Database `di:""`
}

func (s *UserService) Start() {
	s.Logger.Log("UserService initialized")
}

func (s *UserService) Close() {
	s.Logger.Log("UserService destroyed")
}

type appScope struct{}

func main() {
	r := di.NewRegistry()
	di.DeclareScope[*appScope](r)

	di.RegisterValue(r, &ConsoleLogger{Prefix: "APP"})
	di.Provide(r, NewMySQLDatabase, di.As[Database]())
	di.Register[*UserService](r)

	r.Annotate(di.TypeOf[*UserService]()).
		Method("Start", di.OnInit{}).
		Method("Close", di.OnDestroy{})

	c, err := di.New[*appScope](r)
	if err != nil {
		panic(err)
	}
	defer c.Destroy()

	svc := di.MustResolve[*UserService](c)
	if err := svc.DB.Connect(); err != nil {
		panic(err)
	}

	logger := di.MustResolve[Logger](c)
	logger.Log("Logger resolved by interface")
}
