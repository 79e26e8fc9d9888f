// Package config loads the on-disk JSON configuration for a Provider
// or Client process from its default location under the user's home
// directory, with environment-variable overrides.
package config
