package start

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/drover-sh/drover/api"
	"github.com/drover-sh/drover/internal/metrics"
	"github.com/drover-sh/drover/internal/playbook"
	"github.com/drover-sh/drover/internal/sweeper"
	"github.com/drover-sh/drover/pkg/db"
	"github.com/drover-sh/drover/pkg/env"
	"github.com/drover-sh/drover/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "start"
	short   = "Start a drover coordination instance"
	long    = "This command starts a drover fleet coordination instance"
	example = "drover start"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"launch", "boot", "up", "run", "begin"},
		Example:    example,
		RunE:       start,
	}
)

var cancel context.CancelFunc

func start(cmd *cobra.Command, args []string) error {
	signalChan := make(chan os.Signal, 1)

	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 signal")
				if profile := pprof.Lookup("goroutine"); profile != nil {
					if err := profile.WriteTo(os.Stdout, 1); err != nil {
						log.Error("write goroutine profile", "error", err)
					}
				}
			case syscall.SIGINT:
				log.Info("gracefully shutting down due to SIGINT signal")
				shutdown()
				os.Exit(0)
			}
		}
	}()

	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT)

	var errs = make(chan error)
	ctx, cancelFunc := context.WithCancel(context.Background())
	cancel = cancelFunc

	log.Info("migrating database")
	if err := db.Migrate(); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	metrics.Register()

	vars := env.Variables()
	if vars.PlaybookDir != "" {
		importer := playbook.NewImporter(db.Connection())
		applied, err := importer.LoadDir(ctx, vars.PlaybookDir)
		if err != nil {
			log.Fatal("playbook import failure", "dir", vars.PlaybookDir, "error", err)
		}
		log.Info("playbooks imported", "dir", vars.PlaybookDir, "count", applied)
	}

	go func() {
		log.Info("spinning up api")
		errs <- api.Start()
	}()

	go func() {
		log.Info("launching heartbeat sweeper")
		errs <- sweeper.Start(ctx)
	}()

	defer shutdown()

	return <-errs
}

func shutdown() {
	if cancel != nil {
		cancel()
	}
}
