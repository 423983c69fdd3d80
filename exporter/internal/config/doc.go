// Package config loads and watches the exporter configuration file.
//
// Top-level types:
//   - Config{Exporter, PiHole}: full config tree parsed from YAML
//   - ExporterConfig: listen_address, port, metrics_path, log_level,
//     strict_arity
//   - PiHoleConfig: address, scheme, api_path, timeout, top_items,
//     extended_metrics, client_queries, auth, tls
//   - AuthConfig: token, token_env, token_file, token_key; Resolve() picks
//     the first non-empty source and reports an unreadable token file
//
// Load(path) reads the YAML file, applies defaults (port 9311, pi.hole,
// /admin/api.php, 10s timeout, top 100, labeled client queries), then
// validates enums and ranges. An empty path returns the defaults so the
// exporter runs from flags alone.
//
// LoadToken(path, key) reads the API token from a key=value file such as
// /etc/pihole/setupVars.conf (WEBPASSWORD).
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
