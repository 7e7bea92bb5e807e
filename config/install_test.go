package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/meta"
)

type appScope struct{}

type Server struct {
	Config config.Configuration `di:""`

	Port    int
	Timeout time.Duration
	Name    string
	Debug   bool
}

func (s *Server) SetPort(port int)                { s.Port = port }
func (s *Server) SetTimeout(timeout time.Duration) { s.Timeout = timeout }
func (s *Server) SetName(name string)              { s.Name = name }
func (s *Server) SetDebug(debug bool)              { s.Debug = debug }

type Database struct {
	DSN  string `json:"dsn" validate:"required"`
	Pool int    `json:"pool"`
}

func setup(t *testing.T, cfg config.Configuration, opts ...config.InstallOption) *di.Registry {
	t.Helper()
	r := di.NewRegistry(di.WithMetadata(meta.NewReflector()))
	config.Install(r, cfg, opts...)
	di.DeclareScope[*appScope](r, di.TypeOf[*config.Module]())
	return r
}

func TestValueInjection(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"server": map[string]any{"port": "8081", "timeout": "2s"},
		}).
		Build()
	require.NoError(t, err)

	r := setup(t, cfg)
	r.Annotate(di.TypeOf[*Server]()).
		Method("SetPort", config.Value{Key: "server:port", Default: 80}).
		Method("SetTimeout", config.Value{Key: "server:timeout"}).
		Method("SetName", config.Value{Key: "server:name", Default: "svc"}).
		Method("SetDebug", config.Value{Key: "server:debug"})
	di.Register[*Server](r)

	c, err := di.New[*appScope](r)
	require.NoError(t, err)
	defer c.Destroy()

	s := di.MustResolve[*Server](c)
	assert.Equal(t, 8081, s.Port)
	assert.Equal(t, 2*time.Second, s.Timeout)
	assert.Equal(t, "svc", s.Name)
	assert.False(t, s.Debug)
	assert.Same(t, cfg, s.Config)
}

func TestValueCoercionError(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{"server": map[string]any{"port": "http"}}).
		Build()
	require.NoError(t, err)

	r := setup(t, cfg)
	r.Annotate(di.TypeOf[*Server]()).Method("SetPort", config.Value{Key: "server:port"})
	di.Register[*Server](r)

	_, err = di.New[*appScope](r)
	assert.ErrorContains(t, err, "server:port")
}

func TestBindSection(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"db":     map[string]any{"dsn": "postgres://x", "pool": 4},
			"broken": map[string]any{"pool": 1},
		}).
		Build()
	require.NoError(t, err)

	r := setup(t, cfg)
	config.Bind[Database](r, "db")
	config.BindMonitor[Database](r, "db")

	c, err := di.New[*appScope](r)
	require.NoError(t, err)
	defer c.Destroy()

	db := di.MustResolve[*Database](c)
	assert.Equal(t, "postgres://x", db.DSN)
	assert.Equal(t, 4, db.Pool)

	m := di.MustResolve[*config.Monitor[Database]](c)
	assert.Equal(t, *db, m.Value())
}

func TestBindSectionInvalid(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{"db": map[string]any{"pool": 1}}).
		Build()
	require.NoError(t, err)

	r := setup(t, cfg)
	config.Bind[Database](r, "db")

	_, err = di.New[*appScope](r)
	var verr *config.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestConfigurationNotVisibleWithoutImport(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().Build()
	require.NoError(t, err)

	r := di.NewRegistry(di.WithMetadata(meta.NewReflector()))
	config.Install(r, cfg)
	di.DeclareScope[*appScope](r)

	c, err := di.New[*appScope](r)
	require.NoError(t, err)
	defer c.Destroy()

	_, err = di.Resolve[config.Configuration](c)
	var nse *di.NotSupportedError
	assert.ErrorAs(t, err, &nse)
}

func TestInstallWithWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: first\n"), 0o644))

	cfg, err := config.NewConfigurationBuilder().AddYamlFile(path).Build()
	require.NoError(t, err)

	r := setup(t, cfg, config.WithWatch())

	c, err := di.New[*appScope](r)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name: second\n"), 0o644))
	assert.Eventually(t, func() bool {
		return cfg.Get("name") == "second"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Destroy())
}

func TestBindLoggingOptions(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"logging": map[string]any{"level": "debug", "console": true, "color": false},
		}).
		Build()
	require.NoError(t, err)

	var opts logging.Options
	require.NoError(t, cfg.Bind("logging", &opts))
	assert.Equal(t, logging.Options{Level: "debug", Console: true}, opts)

	_, err = logging.NewLoggingBuilder().Configure(opts).TryBuild()
	assert.NoError(t, err)
}
