// Package config loads the kgraph.yaml configuration file.
//
// A file looks like:
//
//	backend: neo4j
//	validation_mode: strict
//	neo4j:
//	  uri: neo4j://localhost:7687
//	  user: neo4j
//	  workers: 16
//	linker:
//	  backend: redis
//	  redis_url: redis://localhost:6379
//	  ttl: 72h
//
// Environment variables prefixed KGRAPH_ override file values; see ApplyEnv.
package config
