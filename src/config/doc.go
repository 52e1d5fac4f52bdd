// Package config defines the configuration for a node.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// where it expects to find:
//
//  priv_key // a plain text file containing the raw private key (cf. cotinode keygen).
//  cotinode.toml // (optional) values for any of the command line flags.
//  badger_db // the database directory when Store is set.
package config
