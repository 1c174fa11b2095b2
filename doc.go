// Package searchrepair repairs search engine plugins left behind by
// interrupted installs and offers a context menu entry for adding search
// engines.
//
// An interrupted install leaves the engine descriptor in the profile's
// search plugin directory with the sentinel extension ("undefined"). On
// activation the service scans the directory once and hands every such
// orphan to a single worker, which:
//   - reinstalls engines the registry already knows (matched by file
//     identity) from a copy with a recognized extension, keeping the user's
//     active engine
//   - installs unknown engines and discards them again when an existing
//     engine produces the same submission for a random probe query
//   - removes the orphan once its install succeeded
//
// While active, every browser window gets an "Add as Search Engine" menu
// item in its content context menu, shown only when the menu opens on a text
// input, plus the stylesheet that decorates it. Deactivation removes both
// from every window.
//
// Basic Usage:
//
//	config := searchrepair.DefaultConfig()
//	config.PluginDirectory = profileDir + "/searchplugins"
//
//	service, err := searchrepair.NewService(config, searchrepair.Host{
//		Registry: registry,
//		Windows:  windows,
//	}, logger)
//	if err != nil {
//		return err
//	}
//
//	if err := service.Activate(ctx); err != nil {
//		logger.Warn("Startup scan incomplete", "error", err)
//	}
//	defer service.Deactivate()
//
// Configuration can be hot reloaded from a JSON or YAML file with
// ConfigWatcher, which polls the file through Argus and passes every valid
// version to Service.ApplyConfig.
//
// Host integration:
// The browser is reached only through the interfaces in host.go
// (SearchEngineRegistry, FileSystem, WindowRegistry and the small DOM
// surface), so the package can be driven by any embedding and tested with
// in-memory fakes.
package searchrepair
