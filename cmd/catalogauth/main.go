package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/waabox/catalogauth/internal/auth"
	"github.com/waabox/catalogauth/internal/config"
	"github.com/waabox/catalogauth/internal/credential"
	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/gateway"
	"github.com/waabox/catalogauth/internal/logging"
	"github.com/waabox/catalogauth/internal/metrics"
	"github.com/waabox/catalogauth/internal/session"
	"github.com/waabox/catalogauth/internal/tui"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath  string
	interactive bool
	listen      string
	probe       string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "path to the config file")
	flag.BoolVar(&opts.interactive, "interactive", false, "sign in with the terminal login form")
	flag.StringVar(&opts.listen, "listen", "", "serve /metrics and /healthz on this address")
	flag.StringVar(&opts.probe, "probe", "", "after login, GET this gateway path or URL once")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *versionFlag {
		fmt.Println("catalogauth", version)
		os.Exit(0)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "catalogauth: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.listen == "" {
		opts.listen = cfg.Metrics.Listen
	}

	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, opts.configPath)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	client := auth.NewClient(cfg.Auth.TokenURL,
		auth.WithTimeout(cfg.AuthTimeoutOrDefault()),
		auth.WithDefaultTTL(cfg.DefaultTTLOrDefault()),
		auth.WithLogger(log),
	)
	mgr := session.NewManager(client, session.Options{
		RefreshRatio:    cfg.RefreshRatioOrDefault(),
		MinRefreshDelay: cfg.MinRefreshDelayOrDefault(),
		RefreshTimeout:  cfg.AuthTimeoutOrDefault(),
		Recorder:        recorder,
		Store:           store,
		Logger:          log,
	})
	submitter := credential.NewSubmitter(mgr, log)

	req := domain.CredentialRequest{
		GrantType:    domain.GrantType(cfg.GrantTypeOrDefault()),
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Scope:        cfg.Auth.Scope,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	if opts.listen != "" {
		serveMetrics(gctx, g, opts.listen, metrics.Handler(reg, func() error {
			_, err := mgr.Current()
			return err
		}), log)
	}

	if opts.interactive {
		g.Go(func() error {
			defer stop()
			return runInteractive(gctx, opts.configPath, req, mgr, submitter, log)
		})
	} else {
		g.Go(func() error {
			defer stop()
			return runHeadless(gctx, cfg, opts, req, mgr, submitter, store != nil, log)
		})
	}

	runErr := g.Wait()

	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer logoutCancel()
	if err := mgr.Logout(logoutCtx); err != nil {
		log.Error(err, "logout")
	}
	return runErr
}

// runHeadless logs in from config and blocks until a signal or a refresh failure.
func runHeadless(
	ctx context.Context,
	cfg config.Config,
	opts options,
	req domain.CredentialRequest,
	mgr *session.Manager,
	submitter *credential.Submitter,
	persistent bool,
	log logr.Logger,
) error {
	failed := make(chan error, 1)
	unsubscribe := mgr.Subscribe(func(ev session.Event) {
		if ev.Type == session.EventExpired {
			select {
			case failed <- ev.Err:
			default:
			}
		}
	})
	defer unsubscribe()

	login := submitter.Submit
	if persistent {
		login = mgr.Resume
	}
	sess, err := login(ctx, req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Authenticated. Session %s valid until %s\n", sess.ID, sess.ExpiresAt.Format(time.RFC3339))

	if opts.probe != "" {
		gw := gateway.NewClient(cfg.Gateway.URL, mgr, nil, log)
		if err := gw.Get(ctx, opts.probe, nil); err != nil {
			log.Error(err, "gateway probe failed")
		} else {
			log.Info("gateway probe succeeded")
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-failed:
		return err
	}
}

// runInteractive shows the login form and the session screen until the user quits.
func runInteractive(
	ctx context.Context,
	configPath string,
	req domain.CredentialRequest,
	mgr *session.Manager,
	submitter *credential.Submitter,
	log logr.Logger,
) error {
	model := tui.NewAppModel(req)
	model.OnSubmit = func(ctx context.Context, r domain.CredentialRequest) (domain.Session, error) {
		sess, err := submitter.Submit(ctx, r)
		if err != nil {
			return sess, err
		}
		if saveErr := config.SaveLogin(configPath, string(r.GrantType), r.ClientID, r.Scope); saveErr != nil {
			log.Error(saveErr, "saving config")
		}
		return sess, nil
	}
	model.OnLogout = mgr.Logout

	return tui.Run(ctx, model, mgr.Subscribe)
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, h http.Handler, log logr.Logger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// openStore returns the configured session store, or nil when persistence is off.
func openStore(ctx context.Context, cfg config.Config, configPath string) (session.Store, func(), error) {
	switch cfg.StoreOrDefault() {
	case "none":
		return nil, func() {}, nil
	case "file":
		return session.NewFileStore(cfg.SessionPathOrDefault(configPath)), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return session.NewRedisStore(rdb, cfg.RedisKeyOrDefault()), func() { rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.StoreOrDefault())
	}
}
