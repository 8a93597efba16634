package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fulldump/box"

	"github.com/fulldump/textdb/api"
	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/configuration"
	"github.com/fulldump/textdb/database"
	"github.com/fulldump/textdb/service"
)

var VERSION = "dev"

// Bootstrap wires the database and the http api. start blocks until stop
// is called or a termination signal arrives.
func Bootstrap(c *configuration.Configuration, logger *slog.Logger) (start, stop func(), err error) {

	db := database.NewDatabase(&database.Config{
		Dir: c.Dir,
		Options: collection.Options{
			BufferCount:   c.BufferCount,
			BufferSize:    c.BufferSize,
			MaxReaders:    c.MaxReaders,
			AppendChunk:   c.AppendChunk,
			NoAllocations: !c.Allocations,
			Logger:        logger,
		},
		Logger: logger,
	})

	svc := service.NewService(db, c.StatusInterval, logger)
	b := api.Build(svc, VERSION)
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.AccessLog(logger.With("component", "access")),
		api.PrettyErrorInterceptor,
		api.RecoverFromPanic(logger),
		api.InterceptorUnavailable(db),
	)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("listening", "addr", ln.Addr().String())

	once := sync.Once{}
	stop = func() {
		once.Do(func() {
			s.Shutdown(context.Background())
			svc.Close()
			if err := db.Stop(); err != nil {
				logger.Error("stopping database", "err", err)
			}
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logger.Info("signal received", "signal", sig.String())
		stop()
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Start()
			if err != nil {
				logger.Error("database", "err", err)
				stop()
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "err", err)
			}
		}()

		wg.Wait()
	}

	return
}
