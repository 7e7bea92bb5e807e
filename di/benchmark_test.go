package di_test

import (
	"testing"

	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
)

func benchContainer(b *testing.B, opts ...di.Option) *di.Container {
	b.Helper()
	r := di.NewRegistry(di.WithMetadata(meta.NewReflector()))
	di.DeclareScope[*testScope](r)
	di.Register[*Bar](r)
	di.Provide(r, NewFoo, opts...)

	c, err := di.New[*testScope](r)
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	b.Cleanup(func() { _ = c.Destroy() })
	return c
}

func BenchmarkResolveSingleton(b *testing.B) {
	c := benchContainer(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = di.Resolve[*Foo](c)
	}
}

func BenchmarkResolveTransient(b *testing.B) {
	c := benchContainer(b, di.WithTransient())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = di.Resolve[*Foo](c)
	}
}

func BenchmarkResolveParallel(b *testing.B) {
	c := benchContainer(b)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = di.Resolve[*Foo](c)
		}
	})
}
