// Package supervisor owns the process-level concerns surrounding the
// dispatcher: the free-space watchdog and failed-replay
// quarantine checked before every transaction, and the signal handling
// that drains the pipeline on SIGTERM/SIGINT and rescans handler
// modules on SIGHUP.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/dirlistener/dirlistener/pkg/dispatcher"
	"github.com/dirlistener/dirlistener/pkg/handler"
)

// Supervisor wires a Dispatcher's PreTransaction hook to the quarantine
// and free-space checks, and owns the OS signal loop around
// Dispatcher.Run.
type Supervisor struct {
	Dispatcher *dispatcher.Dispatcher
	Quarantine *QuarantineChecker
	Watchdog   *FreeSpaceWatchdog
	Runtime    *handler.Runtime
	ModuleDirs []string
	Errors     *ErrorLog
}

// New builds a Supervisor and installs its PreTransaction hook on disp.
func New(disp *dispatcher.Dispatcher, quarantine *QuarantineChecker, watchdog *FreeSpaceWatchdog, rt *handler.Runtime, moduleDirs []string) *Supervisor {
	s := &Supervisor{
		Dispatcher: disp,
		Quarantine: quarantine,
		Watchdog:   watchdog,
		Runtime:    rt,
		ModuleDirs: moduleDirs,
		Errors:     &ErrorLog{},
	}
	disp.PreTransaction = s.preTransaction
	return s
}

func (s *Supervisor) preTransaction(ctx context.Context) error {
	if err := s.Quarantine.Check(ctx); err != nil {
		return err
	}
	if s.Watchdog != nil {
		if err := s.Watchdog.Check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run checks the quarantine sentinel once up front ("the
// dispatcher halts immediately" if it's present at startup), then runs
// the dispatcher under a signal loop: SIGTERM/SIGINT cancel the
// dispatcher's context so Run drains the in-flight transaction and
// returns; SIGHUP triggers a module rescan without interrupting the
// current transaction.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	defer func() { s.Errors.Record(err) }()

	if err := s.Quarantine.Check(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Dispatcher.Run(runCtx) }()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				s.rescanModules()
			default:
				logger.Info("supervisor: received shutdown signal, draining current transaction", "signal", sig.String())
				cancel()
				return <-errCh
			}
		case err := <-errCh:
			return err
		case <-ctx.Done():
			cancel()
			return <-errCh
		}
	}
}

// rescanModules implements SIGHUP's "re-reads module directories"
//. Load errors are logged and the scan proceeds with whatever
// loaded successfully; partial loads are permitted.
func (s *Supervisor) rescanModules() {
	mods, errs := handler.ScanDirs(s.ModuleDirs)
	for _, err := range errs {
		logger.Warn("supervisor: module rescan error", "error", err)
	}
	s.Runtime.Reload(mods)
	logger.Info("supervisor: module directories rescanned", "module_count", len(mods))
}
