package parser

import (
	"os"
	"path/filepath"
	"time"

	"github.com/namsral/flag"
	"github.com/rs/zerolog/log"
)

type Arguments struct {
	ListenAddress string
	SandboxRoot   string

	SessionTimeout   time.Duration
	CompileTimeout   time.Duration
	QuiescenceWindow time.Duration
	PromptWindow     time.Duration
	PollInterval     time.Duration

	MaxConcurrentSessions int
	SessionRetention      time.Duration

	DatabaseConn string

	NsqAddress string
	NsqPort    int
	NsqTopic   string
}

func ParseDefaultConfigurationArguments() Arguments {
	args := Arguments{}

	flag.StringVar(&args.ListenAddress, "listen-address", ":8080", "")
	flag.StringVar(&args.SandboxRoot, "sandbox-root", filepath.Join(os.TempDir(), "executions"), "")

	flag.DurationVar(&args.SessionTimeout, "session-timeout", 10*time.Second, "")
	flag.DurationVar(&args.CompileTimeout, "compile-timeout", 10*time.Second, "")
	flag.DurationVar(&args.QuiescenceWindow, "quiescence-window", 250*time.Millisecond, "")
	flag.DurationVar(&args.PromptWindow, "prompt-window", 100*time.Millisecond, "")
	flag.DurationVar(&args.PollInterval, "poll-interval", 25*time.Millisecond, "")

	flag.IntVar(&args.MaxConcurrentSessions, "max-concurrent-sessions", 32, "")
	flag.DurationVar(&args.SessionRetention, "session-retention", 2*time.Minute, "")

	flag.StringVar(&args.DatabaseConn, "database-connection-string", "", "")

	flag.StringVar(&args.NsqAddress, "nsq-address", "", "")
	flag.IntVar(&args.NsqPort, "nsq-port", 4150, "")
	flag.StringVar(&args.NsqTopic, "nsq-topic", "executions", "")

	flag.Parse()
	log.Info().Msgf("%+v parsed arguments", args)

	return args
}
