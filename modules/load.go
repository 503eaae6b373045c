package modules

import (
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/application"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/configuration"
)

func BuiltInModules(conf *configuration.Configuration) []application.Module {
	return []application.Module{
		hierarchy.NewModule(&hierarchy.ModuleOptions{Configuration: conf}),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
