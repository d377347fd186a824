package api

import (
	"github.com/marmos91/volumed/pkg/api/handlers"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/server"
)

// ProfileName is the service profile serving the volume API.
const ProfileName = "volume-api"

// Profile returns the volume API profile. It binds to the server.* options.
func Profile() server.Profile {
	return server.Profile{
		Name:        ProfileName,
		Description: "Volume backend API (health, version, capacity stats)",
		Bind:        server.ServerBinding,
		Build: func(cfg *config.Resolved) (server.Application, error) {
			c := cfg.Config()
			backend := handlers.NewVolumeBackend(c.Volume, cfg.Version(), nil)

			router := NewRouter(RouterConfig{
				Project: cfg.ProjectName(),
				Version: cfg.Version(),
				Backend: backend,
			})

			return server.NewHTTPApplication(router, server.HTTPConfig{
				ReadTimeout:  c.Server.ReadTimeout,
				WriteTimeout: c.Server.WriteTimeout,
				IdleTimeout:  c.Server.IdleTimeout,
			}), nil
		},
	}
}
