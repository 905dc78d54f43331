package plugin

import "errors"

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin is not loaded.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNoEntryPoint is returned when the plugin's main script is missing.
	ErrNoEntryPoint = errors.New("plugin has no entry point")

	// ErrAlreadyLoaded is returned when loading a plugin name twice.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrDependencyNotFound is returned when a required dependency is missing.
	ErrDependencyNotFound = errors.New("plugin dependency not found")

	// ErrCyclicDependency is returned when plugins depend on each other.
	ErrCyclicDependency = errors.New("cyclic plugin dependency detected")

	// ErrInvalidManifest is returned when plugin.yml fails validation.
	ErrInvalidManifest = errors.New("invalid plugin manifest")
)
