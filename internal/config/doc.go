// Package config provides configuration loading and validation for obaidx.
//
// # Configuration Structure
//
// The Config struct groups the settings of one directory backend:
//
//	type Config struct {
//	    Storage StorageConfig // Storage engine settings
//	    Backend BackendConfig // Entry container tuning
//	    Indexes []IndexConfig // Attribute index definitions
//	    Logging LogConfig     // Logging settings
//	}
//
// # Loading Configuration
//
//	cfg, err := config.LoadConfig("/etc/obaidx/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
//	    log.Fatal(errs[0])
//	}
//
// Values may reference the environment with ${VAR} or ${VAR:-default}.
// Unknown keys are rejected.
//
// # Example Configuration
//
//	storage:
//	  dataDir: /var/lib/obaidx
//	  cacheSize: 256MB
//	  lockTimeout: 30s
//	backend:
//	  baseDN: dc=example,dc=com
//	  deadlockRetryLimit: 10
//	indexes:
//	  - attribute: cn
//	    types: [equality, substring, extensible]
//	    substringLength: 4
//	    extensibleRules: [en.eq, en.sub]
//	  - attribute: member
//	    types: [equality]
//	    entryLimit: 0
//	logging:
//	  level: info
//	  format: json
//
// # Watching for Changes
//
// IndexWatcher polls the file and hands each valid revision that changes
// the index section to its callback, together with the DiffIndexes result.
package config
