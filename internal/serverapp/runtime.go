package serverapp

import (
	"fmt"
	"log/slog"
	"os"
)

// Start launches the HTTP listener goroutine. Init must have completed.
// Calling Start again returns the same error channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop blocks until a shutdown signal arrives or the listener
// fails, and reports which of the two ended the wait.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	select {
	case err := <-serverErrors:
		if err == nil {
			err = fmt.Errorf("server stopped unexpectedly")
		}
		return "server_error", err
	case sig := <-stop:
		a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return "signal", nil
	}
}
