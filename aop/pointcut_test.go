package aop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/async"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/meta"
)

type Transactional struct{}
type Audited struct{}

type Repo struct{}

func (r *Repo) Save(v string) error { return nil }
func (r *Repo) SaveAll(v []string) error { return nil }
func (r *Repo) Load(ctx context.Context, id string) *async.Future { return async.Resolved(id) }

type Saver interface {
	Save(v string) error
}

func describeRepo() *meta.TypeDescriptor {
	rf := meta.NewReflector()
	rf.Annotate(di.TypeOf[*Repo]()).
		Type(Audited{}).
		Method("Save", Transactional{})
	return rf.Describe(di.TypeOf[*Repo]())
}

func matching(pc aop.Pointcut, desc *meta.TypeDescriptor) []string {
	var names []string
	for _, m := range desc.Methods {
		if pc.Match(desc, m) {
			names = append(names, m.Name)
		}
	}
	return names
}

func TestMethodPointcuts(t *testing.T) {
	desc := describeRepo()

	tests := []struct {
		name string
		pc   aop.Pointcut
		want []string
	}{
		{"all", aop.Methods(), []string{"Load", "Save", "SaveAll"}},
		{"named", aop.Methods().Named("Save"), []string{"Save"}},
		{"regex", aop.Methods().Matches("^Save"), []string{"Save", "SaveAll"}},
		{"decorated", aop.Methods().DecoratedWith(Transactional{}), []string{"Save"}},
		{"of type", aop.Methods().OfType(di.TypeOf[Saver]()).Named("SaveAll"), []string{"SaveAll"}},
		{"not of type", aop.Methods().OfType(di.TypeOf[Service]()), nil},
		{"declared by", aop.Methods().DeclaredBy(aop.Classes().DecoratedWith(Audited{})).ThatAreSync(), []string{"Save", "SaveAll"}},
		{"async", aop.Methods().ThatAreAsync(), []string{"Load"}},
		{"and", aop.Methods().Matches("^Save").DecoratedWith(Transactional{}), []string{"Save"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matching(tt.pc, desc))
		})
	}
}

func TestClassPointcuts(t *testing.T) {
	desc := describeRepo()

	tests := []struct {
		name string
		pc   aop.Pointcut
		want []string
	}{
		{"named", aop.Classes().Named("Repo"), []string{"Load", "Save", "SaveAll"}},
		{"other name", aop.Classes().Named("Other"), nil},
		{"regex", aop.Classes().Matches(`aop_test\.Repo$`), []string{"Load", "Save", "SaveAll"}},
		{"of type", aop.Classes().OfType(di.TypeOf[Saver]()).ThatAreSync(), []string{"Save", "SaveAll"}},
		{"decorated", aop.Classes().DecoratedWith(Audited{}).ThatAreAsync(), []string{"Load"}},
		{"not decorated", aop.Classes().DecoratedWith(Transactional{}), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matching(tt.pc, desc))
		})
	}
}
