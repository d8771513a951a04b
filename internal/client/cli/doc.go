// Package cli implements hsctl, a command line tool for HandlerSocket
// stores and the cache daemon.
//
// Local commands (find, insert, update, delete, cache ...) open the config
// group named by --group from the groups file given with --config. Remote
// commands talk to hscached over gRPC.
package cli
