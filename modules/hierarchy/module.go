package hierarchy

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/infrastructure/apiclient"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/infrastructure/artifacts"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/presentation/controllers"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/application"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/configuration"
)

type ModuleOptions struct {
	Configuration *configuration.Configuration
	// Axes defaults to entity and account.
	Axes []domain.Axis
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	set, err := BuildServices(context.Background(), m.opts.Configuration, app.Logger(), m.opts.Axes...)
	if err != nil {
		return err
	}
	app.RegisterServices(set)
	app.RegisterControllers(
		controllers.NewHierarchyController(app, controllers.ControllerOptions{
			MaxUploadSize: m.opts.Configuration.MaxUploadSize,
		}),
	)
	return nil
}

func (m *Module) Name() string {
	return "hierarchy"
}

// BuildServices wires one HierarchyService per axis against the configured
// backend, sharing the field cache, options resolver and artifact sink.
func BuildServices(ctx context.Context, conf *configuration.Configuration, logger *logrus.Logger, axes ...domain.Axis) (*services.ServiceSet, error) {
	if len(axes) == 0 {
		axes = []domain.Axis{domain.AxisEntity, domain.AxisAccount}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var registryOpts []services.RegistryOption
	if conf.RedisURL != "" {
		opts, err := redis.ParseURL(conf.RedisURL)
		if err != nil {
			opts = &redis.Options{Addr: conf.RedisURL}
		}
		registryOpts = append(registryOpts, services.WithFieldCache(
			services.NewRedisFieldCache(redis.NewClient(opts), "hierarchy:custom_fields", conf.CustomFields.CacheTTL),
		))
	} else {
		registryOpts = append(registryOpts, services.WithFieldCache(services.NewMemoryFieldCache(conf.CustomFields.CacheTTL)))
	}
	if dsn := strings.TrimSpace(conf.CustomFields.OptionsDSN); dsn != "" {
		resolver, err := services.OpenSQLOptionsResolver(dsn)
		if err != nil {
			return nil, err
		}
		registryOpts = append(registryOpts, services.WithOptionsResolver(resolver))
	}

	var svcOpts []services.ServiceOption
	sink, err := newArtifactSink(ctx, conf)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		svcOpts = append(svcOpts, services.WithArtifactSink(sink))
	}

	svcs := make([]*services.HierarchyService, 0, len(axes))
	for _, axis := range axes {
		client, err := apiclient.New(apiclient.Config{
			BaseURL:         conf.HierarchyAPI.URL,
			Authorization:   conf.HierarchyAPI.Authorization(),
			CompanyName:     conf.HierarchyAPI.CompanyName,
			RequestIDHeader: conf.HierarchyAPI.RequestIDHeader,
			Timeout:         conf.HierarchyAPI.Timeout,
		}, axis)
		if err != nil {
			return nil, err
		}

		var source services.FieldSource = client
		if path := strings.TrimSpace(conf.CustomFields.File); path != "" {
			source = services.FallbackFieldSource{client, services.FileFieldSource{Path: path, Axis: axis}}
		}
		registry := services.NewFieldRegistry(axis, source, registryOpts...)
		svcs = append(svcs, services.NewHierarchyService(client, registry, svcOpts...))
		logger.WithFields(logrus.Fields{"axis": axis, "api": conf.HierarchyAPI.URL}).Debug("hierarchy service ready")
	}
	return services.NewServiceSet(svcs...), nil
}

func newArtifactSink(ctx context.Context, conf *configuration.Configuration) (services.ArtifactSink, error) {
	a := conf.Artifacts
	if a.MinioEnabled() {
		return artifacts.NewMinioSink(ctx, artifacts.MinioConfig{
			Endpoint:  a.MinioEndpoint,
			AccessKey: a.MinioAccessKey,
			SecretKey: a.MinioSecretKey,
			Bucket:    a.MinioBucket,
			Prefix:    a.MinioPrefix,
			Secure:    a.MinioSecure,
		})
	}
	if strings.TrimSpace(a.Dir) != "" {
		return artifacts.NewDirSink(a.Dir)
	}
	return nil, nil
}
