// Package config provides layered configuration (YAML file overlaid with
// environment variables) and centralized path resolution for the licensing
// engine. Values that form part of the trust boundary (the license server
// URL, the instance lock name, the version-counter location and the offline
// policy) are compiled-in constants, not configuration.
package config
