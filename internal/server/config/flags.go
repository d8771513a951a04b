package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gohs/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     gRPC bind address (e.g. ":50061")
//	-m string     metrics bind address, "" to disable
//	-g string     groups file
//	-G string     default group
//	-s string     access token secret
//	-t duration   token validity (e.g. "24h")
//	-i duration   garbage collection interval, 0 to disable
//	-l string     log level
//
// Arguments are first filtered with flagx.FilterArgs so that flags owned
// by other layers (-c) do not break parsing.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-m", "-g", "-G", "-s", "-t", "-i", "-l"})

	fs := flag.NewFlagSet("hscached", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics address")
	fs.StringVar(&config.GroupsFile, "g", config.GroupsFile, "groups file")
	fs.StringVar(&config.DefaultGroup, "G", config.DefaultGroup, "default group")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "access token secret")
	fs.DurationVar(&config.TokenValidityDuration, "t", config.TokenValidityDuration, "token validity")
	fs.DurationVar(&config.GCInterval, "i", config.GCInterval, "garbage collection interval")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	return fs.Parse(args)
}
