// Package config loads, validates and hot-reloads docmesh configuration.
//
// A Config is assembled by Loader from defaults, one or more JSON or YAML
// layers and DOCMESH_* environment overrides, then validated. Invalid values
// are rejected, never clamped: the process refuses to start, and a reload
// that fails validation leaves the running configuration in place.
//
// Duration fields accept Go duration strings ("5m", "30s") or days ("1d").
//
//	loader := config.NewLoader()
//	loader.AddLayer("docmesh.yaml")
//	cfg, err := loader.Load()
//	if err != nil { ... }
//
//	manager, _ := config.NewManager(cfg, logger)
//	manager.WatchFile(ctx, loader, 5*time.Second)
//	for update := range manager.OnChange() {
//		// update.Config is the new snapshot
//	}
//
// The Manager also satisfies endpoint.ConfigSource, so the config directory
// always sees the current cluster set.
package config
